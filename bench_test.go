package ringbench

import (
	"bytes"
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/squadracorsepolito/ringbench/consumer"
	"github.com/squadracorsepolito/ringbench/pacer"
	"github.com/squadracorsepolito/ringbench/producer"
	"github.com/squadracorsepolito/ringbench/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Config_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"zero slot bytes", func(cfg *Config) { cfg.SlotBytes = 0 }, false},
		{"zero slot count", func(cfg *Config) { cfg.SlotCount = 0 }, false},
		{"zero duration", func(cfg *Config) { cfg.Duration = 0 }, false},
		{"negative rate", func(cfg *Config) { cfg.SlotsPerSecond = -1 }, false},
		{"negative readers", func(cfg *Config) { cfg.Readers = -1 }, false},
		{"no readers", func(cfg *Config) { cfg.Readers = 0 }, true},
		{"negative drain timeout", func(cfg *Config) { cfg.DrainTimeout = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func Test_Config_ConsumerConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := NewDefaultConfig()
	cfg.SlotsPerSecond = 1000
	cfg.WaitMode = consumer.WaitModePoll

	consCfg := cfg.ConsumerConfig(3)
	assert.Equal("reader-3", consCfg.Name)
	assert.Equal(consumer.WaitModePoll, consCfg.WaitMode)
	assert.Equal(500*time.Microsecond, consCfg.PollInterval)
	assert.Equal(cfg.DrainTimeout, consCfg.DrainTimeout)
	assert.NoError(consCfg.Validate())
	assert.NoError(cfg.ProducerConfig().Validate())
}

// Test_Bench_EndToEnd runs 1024 byte frames on 4 slots at 1000 frames per
// second for 2 seconds with a single reader.
func Test_Bench_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall clock test in short mode")
	}

	for _, mode := range []consumer.WaitMode{consumer.WaitModeNotify, consumer.WaitModePoll} {
		t.Run(mode.String(), func(t *testing.T) {
			assert := assert.New(t)

			cfg := NewDefaultConfig()
			cfg.WaitMode = mode

			bench, err := NewBench(cfg)
			require.NoError(t, err)

			startTime := time.Now()

			report, err := bench.Run(context.Background())
			require.NoError(t, err)

			elapsed := time.Since(startTime)

			prod := report.Producer
			assert.LessOrEqual(prod.Ticks, uint64(2000))
			assert.Greater(prod.Ticks, uint64(1000))
			assert.Equal(prod.Ticks, prod.Written+prod.PendingReader)

			// The reader exists before the first write, it sees every written frame
			require.Len(t, report.Consumers, 1)
			assert.Equal(prod.Written, report.Consumers[0].Read)

			// The reader observes the end shortly after the producer closes
			assert.Less(elapsed, cfg.Duration+500*time.Millisecond)
			assert.True(bench.RingBuffer().IsClosed())
		})
	}
}

func Test_Bench_Cancel(t *testing.T) {
	assert := assert.New(t)

	cfg := NewDefaultConfig()
	cfg.Duration = time.Minute
	cfg.Readers = 2

	bench, err := NewBench(cfg)
	require.NoError(t, err)

	ctx, cancelCtx := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelCtx()

	startTime := time.Now()
	report, err := bench.Run(ctx)
	assert.NoError(err)
	assert.Less(time.Since(startTime), 5*time.Second)

	// The producer closes the ring buffer on cancel and every reader drains it
	assert.True(bench.RingBuffer().IsClosed())
	assert.NotZero(report.Producer.Written)
	for _, res := range report.Consumers {
		assert.Equal(report.Producer.Written, res.Read)
	}
}

// Test_Pipeline_MultipleReaders checks that readers attached before
// production observe the same in-order sequence regardless of their speed.
func Test_Pipeline_MultipleReaders(t *testing.T) {
	assert := assert.New(t)

	const (
		slotBytes   = 64
		readerCount = 3
	)

	rb, err := ringbuffer.New(slotBytes, 8)
	require.NoError(t, err)

	pipeline := NewPipeline()

	mux := &sync.Mutex{}
	seen := make([][]uint64, readerCount)
	stages := make([]*consumer.Stage, 0, readerCount)

	for idx := range readerCount {
		cfg := consumer.NewDefaultConfig()
		cfg.Name = "reader"
		cfg.PollInterval = 200 * time.Microsecond
		if idx%2 == 1 {
			cfg.WaitMode = consumer.WaitModePoll
		}

		stage := consumer.NewStage(rb, cfg, consumer.WithFrameHandler(func(frame []byte) {
			// The whole frame carries the sequence number, a torn frame would not
			seq := binary.LittleEndian.Uint64(frame)
			if !bytes.Equal(frame, seqFrame(seq, slotBytes)) {
				t.Errorf("reader %d observed a torn frame", idx)
			}

			mux.Lock()
			seen[idx] = append(seen[idx], seq)
			mux.Unlock()

			// One slow reader
			if idx == 0 {
				time.Sleep(20 * time.Microsecond)
			}
		}))

		stages = append(stages, stage)
		pipeline.AddStage(stage)
	}

	prodCfg := producer.NewDefaultConfig()
	prodCfg.SlotBytes = slotBytes
	prodCfg.Pacer = &pacer.Config{Duration: 300 * time.Millisecond, Rate: 5000}

	seq := uint64(0)
	prod := producer.NewStage(rb, prodCfg, producer.WithFrameSource(func(frame []byte) error {
		copy(frame, seqFrame(seq, slotBytes))
		seq++
		return nil
	}))
	pipeline.AddStage(prod)

	ctx := context.Background()
	require.NoError(t, pipeline.Init(ctx))
	require.NoError(t, pipeline.Run(ctx))
	pipeline.Stop()

	written := prod.Result().Written
	require.NotZero(t, written)

	for idx := range readerCount {
		assert.Len(seen[idx], int(written), "reader %d", idx)
		assert.Equal(seen[0], seen[idx], "reader %d", idx)
		assert.IsIncreasing(seen[idx], "reader %d", idx)
		assert.Equal(written, stages[idx].Result().Read)
	}
}

func seqFrame(seq uint64, size int) []byte {
	frame := make([]byte, size)
	for off := 0; off+8 <= size; off += 8 {
		binary.LittleEndian.PutUint64(frame[off:], seq)
	}
	return frame
}
