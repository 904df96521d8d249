package pacer

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source of a [Pacer] and of the loops it drives.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a [Clock] backed by the wall clock.
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ManualClock is a [Clock] that only moves when told to.
// Sleep advances it instantly, which makes it suitable for simulating
// long runs.
type ManualClock struct {
	mux *sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		mux: &sync.Mutex{},
		now: start,
	}
}

func (c *ManualClock) Now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.now = c.now.Add(d)
}

func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d > 0 {
		c.Advance(d)
	}

	return nil
}
