// Package producer contains the stage that writes paced frames
// into a ring buffer.
package producer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/squadracorsepolito/ringbench/internal"
	"github.com/squadracorsepolito/ringbench/pacer"
	"github.com/squadracorsepolito/ringbench/ringbuffer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FrameSource fills frame with the content of the next frame.
type FrameSource func(frame []byte) error

// RandomFrames is the default [FrameSource].
func RandomFrames(frame []byte) error {
	_, err := rand.Read(frame)
	return err
}

// Result holds the counters of a producer run.
type Result struct {
	Ticks         uint64
	Written       uint64
	PendingReader uint64
	Behind        uint64
}

type Option func(*Stage)

// WithFrameSource replaces the random frame generator.
func WithFrameSource(source FrameSource) Option {
	return func(s *Stage) {
		s.source = source
	}
}

// WithClock sets the clock used for pacing and sleeping.
func WithClock(clock pacer.Clock) Option {
	return func(s *Stage) {
		s.clock = clock
	}
}

// Stage drives a [pacer.Pacer], generates one frame per tick and tries
// to write it into the ring buffer without ever blocking the pacing.
// A frame rejected for backpressure is dropped, it is never retried.
type Stage struct {
	tel   *internal.Telemetry
	stats *internal.Stats

	cfg *Config

	rb     *ringbuffer.RingBuffer
	pacer  *pacer.Pacer
	clock  pacer.Clock
	source FrameSource

	ticks         atomic.Uint64
	written       atomic.Uint64
	pendingReader atomic.Uint64
	behind        atomic.Uint64

	// Telemetry metrics
	writtenCounter       metric.Int64Counter
	pendingReaderCounter metric.Int64Counter
	behindCounter        metric.Int64Counter
}

func NewStage(rb *ringbuffer.RingBuffer, cfg *Config, opts ...Option) *Stage {
	tel := internal.NewTelemetry("producer", "writer")

	s := &Stage{
		tel:   tel,
		stats: internal.NewStats(tel.Logger(), "producer", "writer"),

		cfg: cfg,

		rb:     rb,
		clock:  pacer.RealClock(),
		source: RandomFrames,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Stats returns the per-second stats of the stage.
func (s *Stage) Stats() *internal.Stats {
	return s.stats
}

func (s *Stage) initMetrics() {
	s.writtenCounter = s.tel.NewCounter("written_frames")
	s.pendingReaderCounter = s.tel.NewCounter("pending_reader_frames")
	s.behindCounter = s.tel.NewCounter("behind_schedule_ticks")

	s.tel.NewGauge("unread_frames", func() int64 { return int64(s.rb.Len()) })
}

func (s *Stage) Init(_ context.Context) error {
	defer s.tel.LogInfo("initialized")

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if s.cfg.SlotBytes != s.rb.SlotBytes() {
		return fmt.Errorf("%w: slot bytes %d do not match ring buffer slot bytes %d",
			ErrInvalidConfig, s.cfg.SlotBytes, s.rb.SlotBytes())
	}

	s.pacer = pacer.New(s.cfg.Pacer, pacer.WithClock(s.clock))
	s.pacer.SetTelemetry(s.tel)

	s.initMetrics()

	return nil
}

// Run produces frames until the pacer is exhausted or ctx is done,
// then closes the ring buffer. It returns an error only when a frame
// cannot be generated or the write fails for a reason other than backpressure.
func (s *Stage) Run(ctx context.Context) error {
	s.tel.LogInfo("running", "rate", s.cfg.Pacer.Rate, "duration", s.cfg.Pacer.Duration, "readers", s.rb.Readers())
	defer s.tel.LogInfo("stopped")

	statsCtx, cancelStats := context.WithCancel(ctx)
	defer cancelStats()
	go s.stats.RunStats(statsCtx)

	ctx, span := s.tel.NewTrace(ctx, "produce frames")
	defer span.End()

	// Readers must always observe the end of the run
	defer s.rb.Close()

	frame := make([]byte, s.cfg.SlotBytes)

	for i, delay := range s.pacer.Ticks() {
		s.ticks.Add(1)

		if delay == 0 {
			if i > 0 {
				s.behind.Add(1)
				s.behindCounter.Add(ctx, 1)
				s.tel.LogWarn("running behind", "frame", i)
			}
		} else if err := s.clock.Sleep(ctx, delay); err != nil {
			s.tel.LogInfo("context done, closing ring buffer", "frame", i)
			return nil
		}

		if ctx.Err() != nil {
			s.tel.LogInfo("context done, closing ring buffer", "frame", i)
			return nil
		}

		if err := s.source(frame); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to generate frame %d: %w", i, err)
		}

		if err := s.rb.TryWrite(frame); err != nil {
			if !errors.Is(err, ringbuffer.ErrWaitingForReader) {
				span.RecordError(err)
				return fmt.Errorf("failed to write frame %d: %w", i, err)
			}

			// The frame is lost, pacing wins over delivery
			s.pendingReader.Add(1)
			s.pendingReaderCounter.Add(ctx, 1)
			s.stats.IncrementDroppedCount()
			s.tel.LogError("frame pending reader", err, "frame", i)

			continue
		}

		s.stats.IncrementItemCount()
		s.stats.IncrementByteCountBy(len(frame))
		s.writtenCounter.Add(ctx, 1)

		if written := s.written.Add(1); written%uint64(s.cfg.ProgressEvery) == 0 {
			s.tel.LogInfo("written frames so far", "written", written, "frame", i)
		}
	}

	res := s.Result()
	span.SetAttributes(
		attribute.Int64("ticks", int64(res.Ticks)),
		attribute.Int64("written_frames", int64(res.Written)),
		attribute.Int64("pending_reader_frames", int64(res.PendingReader)),
		attribute.Int64("behind_schedule_ticks", int64(res.Behind)),
	)

	s.tel.LogInfo("pacer exhausted, closing ring buffer",
		"ticks", res.Ticks, "written", res.Written, "pending_reader", res.PendingReader, "behind", res.Behind)

	return nil
}

// Stop closes the ring buffer, in case Run was never started.
func (s *Stage) Stop() {
	s.tel.LogInfo("closing")

	s.rb.Close()
}

// Result returns the counters of the run so far.
func (s *Stage) Result() Result {
	return Result{
		Ticks:         s.ticks.Load(),
		Written:       s.written.Load(),
		PendingReader: s.pendingReader.Load(),
		Behind:        s.behind.Load(),
	}
}
