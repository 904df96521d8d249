// Package pacer produces the delays that keep a loop at a target rate.
//
// A loop that sleeps for every delay yielded by [Pacer.Ticks] and then does
// one unit of work converges to the configured rate over the whole run,
// even when the cost of single iterations varies.
package pacer

import (
	"iter"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/ringbench/internal"
)

type Pacer struct {
	tel *internal.Telemetry

	cfg   *Config
	clock Clock

	used atomic.Bool
}

type Option func(*Pacer)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(p *Pacer) {
		p.clock = clock
	}
}

func New(cfg *Config, opts ...Option) *Pacer {
	p := &Pacer{
		cfg:   cfg,
		clock: RealClock(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Pacer) SetTelemetry(tel *internal.Telemetry) {
	p.tel = tel
}

func (p *Pacer) Clock() Clock {
	return p.clock
}

func (p *Pacer) Interval() time.Duration {
	return p.cfg.Interval()
}

// Ticks returns the sequence of (tick index, delay) pairs of the run.
// The run starts when the iteration starts and it can be iterated only once,
// a new [Pacer] is needed to run again.
func (p *Pacer) Ticks() iter.Seq2[int, time.Duration] {
	return func(yield func(int, time.Duration) bool) {
		if !p.used.CompareAndSwap(false, true) {
			return
		}

		state := NewState(p.cfg, p.clock.Now())

		for {
			delay, ok := state.Next(p.clock.Now())
			if !ok {
				return
			}

			if p.tel != nil && state.Index > 0 {
				p.tel.LogDebug("pacing step", "last_duration", state.LastDuration, "delay", delay)
			}

			if !yield(state.Index, delay) {
				return
			}
		}
	}
}
