package internal

import (
	"context"
	"sync/atomic"
	"time"
)

// StatsSnapshot is the content of one stats interval.
type StatsSnapshot struct {
	Kind string
	Name string

	Timestamp time.Time
	Interval  time.Duration

	Items   uint64
	Bytes   uint64
	Dropped uint64
}

// StatsSink receives a snapshot at the end of every non empty interval.
type StatsSink interface {
	WriteStats(ctx context.Context, snapshot StatsSnapshot) error
}

type Stats struct {
	l *Logger

	kind string
	name string

	interval time.Duration
	sink     StatsSink

	itemCount    atomic.Uint64
	byteCount    atomic.Uint64
	droppedCount atomic.Uint64
}

func NewStats(l *Logger, kind, name string) *Stats {
	return &Stats{
		l: l,

		kind: kind,
		name: name,

		interval: time.Second,
	}
}

// SetSink sets the sink the snapshots are forwarded to.
// It must be called before RunStats.
func (s *Stats) SetSink(sink StatsSink) {
	s.sink = sink
}

func (s *Stats) RunStats(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.flush(ctx, now)
		}
	}
}

func (s *Stats) flush(ctx context.Context, now time.Time) {
	snapshot := StatsSnapshot{
		Kind: s.kind,
		Name: s.name,

		Timestamp: now,
		Interval:  s.interval,

		Items:   s.itemCount.Swap(0),
		Bytes:   s.byteCount.Swap(0),
		Dropped: s.droppedCount.Swap(0),
	}

	if snapshot.Items == 0 && snapshot.Bytes == 0 && snapshot.Dropped == 0 {
		return
	}

	s.l.Info("stats", "items_per_sec", snapshot.Items, "bytes_per_sec", snapshot.Bytes, "dropped_per_sec", snapshot.Dropped)

	if s.sink == nil {
		return
	}

	if err := s.sink.WriteStats(ctx, snapshot); err != nil {
		s.l.Error("failed to write stats", err)
	}
}

func (s *Stats) IncrementItemCount() {
	s.itemCount.Add(1)
}

func (s *Stats) IncrementByteCountBy(n int) {
	s.byteCount.Add(uint64(n))
}

func (s *Stats) IncrementDroppedCount() {
	s.droppedCount.Add(1)
}
