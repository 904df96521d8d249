// Package consumer contains the stage that drains a ring buffer
// through its own reader.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/squadracorsepolito/ringbench/internal"
	"github.com/squadracorsepolito/ringbench/pacer"
	"github.com/squadracorsepolito/ringbench/ringbuffer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result holds the counters of a consumer run.
type Result struct {
	Read  uint64
	Waits uint64
}

type Option func(*Stage)

// WithFrameHandler sets a function called with every frame read.
// The frame is only valid until the handler returns.
func WithFrameHandler(fn func(frame []byte)) Option {
	return func(s *Stage) {
		s.onFrame = fn
	}
}

// WithClock sets the clock used for sleeping in WaitModePoll.
func WithClock(clock pacer.Clock) Option {
	return func(s *Stage) {
		s.clock = clock
	}
}

// Stage reads every frame the writer produces after Init, until
// the writer finishes. It never closes the ring buffer.
type Stage struct {
	tel   *internal.Telemetry
	stats *internal.Stats

	cfg *Config

	rb     *ringbuffer.RingBuffer
	reader *ringbuffer.Reader
	clock  pacer.Clock

	onFrame func(frame []byte)

	read  atomic.Uint64
	waits atomic.Uint64

	// Telemetry metrics
	readCounter metric.Int64Counter
}

func NewStage(rb *ringbuffer.RingBuffer, cfg *Config, opts ...Option) *Stage {
	tel := internal.NewTelemetry("consumer", cfg.Name)

	s := &Stage{
		tel:   tel,
		stats: internal.NewStats(tel.Logger(), "consumer", cfg.Name),

		cfg: cfg,

		rb:    rb,
		clock: pacer.RealClock(),
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
	s.readCounter = s.tel.NewCounter("read_frames")

	reader := s.reader
	s.tel.NewGauge("lag", func() int64 { return int64(reader.Lag()) })
}

// Init registers the reader. It must be called before the producer starts,
// frames written before Init are not observed.
func (s *Stage) Init(_ context.Context) error {
	defer s.tel.LogInfo("initialized")

	if err := s.cfg.Validate(); err != nil {
		return err
	}

	reader, err := s.rb.NewReader()
	if err != nil {
		return fmt.Errorf("failed to register reader: %w", err)
	}
	s.reader = reader

	s.initMetrics()

	return nil
}

func (s *Stage) newBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PollInterval), ctx)
}

// wait returns when the reader may have a new frame.
func (s *Stage) wait(ctx context.Context, bo backoff.BackOff) error {
	s.waits.Add(1)

	switch s.cfg.WaitMode {
	case WaitModePoll:
		next := bo.NextBackOff()
		if next == backoff.Stop {
			return ctx.Err()
		}
		return s.clock.Sleep(ctx, next)

	default:
		return s.reader.Wait(ctx)
	}
}

func (s *Stage) handleFrame(ctx context.Context, frame []byte) {
	if s.onFrame != nil {
		s.onFrame(frame)
	}

	s.stats.IncrementItemCount()
	s.stats.IncrementByteCountBy(len(frame))
	s.readCounter.Add(ctx, 1)

	if read := s.read.Add(1); read%uint64(s.cfg.ProgressEvery) == 0 {
		s.tel.LogInfo("seen frames so far", "read", read)
	}
}

// Run reads frames until the writer finishes. When ctx is done it keeps
// draining for at most DrainTimeout, so the frames written before the
// writer closes the ring buffer are still read.
func (s *Stage) Run(ctx context.Context) error {
	s.tel.LogInfo("running", "wait_mode", s.cfg.WaitMode)
	defer s.tel.LogInfo("stopped")

	defer s.reader.Detach()

	statsCtx, cancelStats := context.WithCancel(ctx)
	defer cancelStats()
	go s.stats.RunStats(statsCtx)

	ctx, span := s.tel.NewTrace(ctx, "consume frames")
	defer span.End()

	waitCtx := ctx
	bo := s.newBackOff(waitCtx)
	draining := false

	frame := make([]byte, s.rb.SlotBytes())

	for {
		err := s.reader.TryReadInto(frame)

		switch {
		case err == nil:
			s.handleFrame(ctx, frame)

		case errors.Is(err, ringbuffer.ErrWaitingForWriter):
			if err := s.wait(waitCtx, bo); err == nil {
				continue
			}

			if draining {
				s.tel.LogWarn("drain timeout, stopping", "read", s.read.Load(), "lag", s.reader.Lag())
				return nil
			}

			s.tel.LogInfo("context done, draining", "read", s.read.Load())

			drainCtx, cancelDrain := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DrainTimeout)
			defer cancelDrain()

			waitCtx = drainCtx
			bo = s.newBackOff(waitCtx)
			draining = true

		case errors.Is(err, ringbuffer.ErrWriterFinished):
			res := s.Result()
			span.SetAttributes(
				attribute.Int64("read_frames", int64(res.Read)),
				attribute.Int64("waits", int64(res.Waits)),
			)
			s.tel.LogInfo("writer finished", "read", res.Read, "waits", res.Waits)
			return nil

		case errors.Is(err, ringbuffer.ErrClosed):
			s.tel.LogInfo("reader detached, stopping", "read", s.read.Load())
			return nil

		default:
			span.RecordError(err)
			return fmt.Errorf("failed to read frame: %w", err)
		}
	}
}

// Stop detaches the reader, so an idle consumer does not hold back the writer.
func (s *Stage) Stop() {
	s.tel.LogInfo("closing")

	if s.reader != nil {
		s.reader.Detach()
	}
}

// Result returns the counters of the run so far.
func (s *Stage) Result() Result {
	return Result{
		Read:  s.read.Load(),
		Waits: s.waits.Load(),
	}
}
