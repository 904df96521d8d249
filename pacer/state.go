package pacer

import "time"

// State is the mutable pacing state of a single run.
// It is owned by the loop that drives the ticks.
type State struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration

	// LastTick is the time the work of the last tick started.
	LastTick time.Time
	// LastDuration is the time spent by the last tick,
	// measured at the most recent step.
	LastDuration time.Duration
	// Index is the index of the last tick.
	Index int

	started bool
	done    bool
}

func NewState(cfg *Config, start time.Time) *State {
	return &State{
		Start:    start,
		End:      start.Add(cfg.Duration),
		Interval: cfg.Interval(),
	}
}

// Next computes the step observed at now. It returns the delay to wait
// before the work of the next tick, and false once the run is over.
//
// The first tick is never delayed. Every following delay is the frame interval
// minus the time the previous tick actually took, clamped at zero: a late
// tick is never compensated by skipping or batching later ones.
func (s *State) Next(now time.Time) (time.Duration, bool) {
	if s.done {
		return 0, false
	}

	if !s.started {
		s.started = true
		s.LastTick = now
		return 0, true
	}

	if !now.Before(s.End) {
		s.done = true
		return 0, false
	}

	s.LastDuration = now.Sub(s.LastTick)

	delay := s.Interval - s.LastDuration
	if delay < 0 {
		delay = 0
	}

	// Do not start a tick that would begin after the end of the run
	tick := now.Add(delay)
	if !tick.Before(s.End) {
		s.done = true
		return 0, false
	}

	s.LastTick = tick
	s.Index++

	return delay, true
}

// Done reports whether the run is over.
func (s *State) Done() bool {
	return s.done
}
