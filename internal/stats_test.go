package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockSink struct {
	snapshots []StatsSnapshot
	err       error
}

func (s *mockSink) WriteStats(_ context.Context, snapshot StatsSnapshot) error {
	s.snapshots = append(s.snapshots, snapshot)
	return s.err
}

func Test_Stats_Flush(t *testing.T) {
	assert := assert.New(t)

	sink := &mockSink{}

	s := NewStats(NewLogger("test", "stats"), "producer", "writer")
	s.SetSink(sink)

	// Nothing happened, nothing is written
	s.flush(context.Background(), time.Now())
	assert.Empty(sink.snapshots)

	for range 3 {
		s.IncrementItemCount()
		s.IncrementByteCountBy(1024)
	}
	s.IncrementDroppedCount()

	now := time.Now()
	s.flush(context.Background(), now)

	if assert.Len(sink.snapshots, 1) {
		snapshot := sink.snapshots[0]
		assert.Equal("producer", snapshot.Kind)
		assert.Equal("writer", snapshot.Name)
		assert.Equal(now, snapshot.Timestamp)
		assert.Equal(uint64(3), snapshot.Items)
		assert.Equal(uint64(3*1024), snapshot.Bytes)
		assert.Equal(uint64(1), snapshot.Dropped)
	}

	// Counters are reset at every interval
	s.flush(context.Background(), time.Now())
	assert.Len(sink.snapshots, 1)
}

func Test_Stats_SinkError(t *testing.T) {
	sink := &mockSink{err: errors.New("sink down")}

	s := NewStats(NewLogger("test", "stats"), "consumer", "reader-0")
	s.SetSink(sink)

	s.IncrementItemCount()
	s.flush(context.Background(), time.Now())

	// The error is logged, the stats keep going
	s.IncrementItemCount()
	s.flush(context.Background(), time.Now())

	assert.Len(t, sink.snapshots, 2)
}
