package pacer

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// runManual drives a pacer on a manual clock. cost returns the time spent
// by the work of tick i.
func runManual(cfg *Config, cost func(i int) time.Duration) []time.Duration {
	clock := NewManualClock(testStart)
	p := New(cfg, WithClock(clock))

	delays := []time.Duration{}
	for i, delay := range p.Ticks() {
		delays = append(delays, delay)

		clock.Advance(delay)
		clock.Advance(cost(i))
	}

	return delays
}

func zeroCost(int) time.Duration { return 0 }

func Test_Config_Validate(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(NewDefaultConfig().Validate())

	assert.ErrorIs((&Config{Duration: 0, Rate: 10}).Validate(), ErrInvalidConfig)
	assert.ErrorIs((&Config{Duration: time.Second, Rate: 0}).Validate(), ErrInvalidConfig)
	assert.ErrorIs((&Config{Duration: time.Second, Rate: -3}).Validate(), ErrInvalidConfig)

	assert.Equal(time.Millisecond, (&Config{Duration: time.Second, Rate: 1000}).Interval())
}

func Test_Pacer_FirstDelayIsZero(t *testing.T) {
	assert := assert.New(t)

	rng := rand.New(rand.NewPCG(1, 2))

	for _, rate := range []int{1, 7, 100, 1000} {
		cfg := &Config{Duration: 2 * time.Second, Rate: rate}
		interval := cfg.Interval()

		delays := runManual(cfg, func(int) time.Duration {
			return time.Duration(rng.Int64N(int64(2 * interval)))
		})

		if assert.NotEmpty(delays) {
			assert.Zero(delays[0])
		}

		for _, delay := range delays {
			assert.GreaterOrEqual(delay, time.Duration(0))
			assert.LessOrEqual(delay, interval)
		}
	}
}

func Test_Pacer_TickCount(t *testing.T) {
	tests := []struct {
		duration time.Duration
		rate     int
	}{
		{time.Second, 1},
		{time.Second, 1000},
		{2 * time.Second, 1000},
		{1500 * time.Millisecond, 7},
		{3 * time.Second, 3},
		{250 * time.Millisecond, 333},
		{10 * time.Second, 60},
	}

	for _, tt := range tests {
		t.Run(tt.duration.String()+"-"+strconv.Itoa(tt.rate), func(t *testing.T) {
			cfg := &Config{Duration: tt.duration, Rate: tt.rate}

			ticks := len(runManual(cfg, zeroCost))
			expected := int(tt.duration.Seconds() * float64(tt.rate))

			assert.InDelta(t, expected, ticks, 1)
		})
	}
}

func Test_Pacer_CorrectsForWorkCost(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{Duration: time.Second, Rate: 100}
	interval := cfg.Interval()

	delays := runManual(cfg, func(int) time.Duration { return interval / 4 })

	assert.InDelta(100, len(delays), 1)
	for _, delay := range delays[1:] {
		assert.Equal(interval-interval/4, delay)
	}
}

func Test_Pacer_Overrun(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{Duration: time.Second, Rate: 100}
	interval := cfg.Interval()

	delays := runManual(cfg, func(i int) time.Duration {
		if i == 5 {
			return 3 * interval
		}
		return 0
	})

	assert.Equal(interval, delays[5])
	// Behind schedule: no wait, and no catch-up afterwards
	assert.Zero(delays[6])
	assert.Equal(interval, delays[7])

	// The late tick cost two intervals of ticks
	assert.InDelta(98, len(delays), 1)
}

func Test_Pacer_NotRestartable(t *testing.T) {
	assert := assert.New(t)

	clock := NewManualClock(testStart)
	p := New(&Config{Duration: 100 * time.Millisecond, Rate: 100}, WithClock(clock))

	first := 0
	for _, delay := range p.Ticks() {
		clock.Advance(delay)
		first++
	}
	assert.InDelta(10, first, 1)

	second := 0
	for range p.Ticks() {
		second++
	}
	assert.Zero(second)
}

func Test_Pacer_EarlyBreak(t *testing.T) {
	assert := assert.New(t)

	clock := NewManualClock(testStart)
	p := New(&Config{Duration: time.Second, Rate: 100}, WithClock(clock))

	count := 0
	for i, delay := range p.Ticks() {
		clock.Advance(delay)
		count++
		if i == 9 {
			break
		}
	}

	assert.Equal(10, count)
}

func Test_State_Next(t *testing.T) {
	assert := assert.New(t)

	cfg := &Config{Duration: 50 * time.Millisecond, Rate: 100}
	state := NewState(cfg, testStart)

	delay, ok := state.Next(testStart)
	assert.True(ok)
	assert.Zero(delay)
	assert.Zero(state.Index)

	// The first tick took 4ms
	delay, ok = state.Next(testStart.Add(4 * time.Millisecond))
	assert.True(ok)
	assert.Equal(6*time.Millisecond, delay)
	assert.Equal(4*time.Millisecond, state.LastDuration)
	assert.Equal(1, state.Index)
	assert.Equal(testStart.Add(10*time.Millisecond), state.LastTick)

	// Past the end of the run
	_, ok = state.Next(testStart.Add(cfg.Duration))
	assert.False(ok)
	assert.True(state.Done())

	_, ok = state.Next(testStart)
	assert.False(ok)
}

func Test_Pacer_RealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping wall clock test in short mode")
	}

	assert := assert.New(t)

	p := New(&Config{Duration: 200 * time.Millisecond, Rate: 50})
	clock := p.Clock()

	startTime := time.Now()

	ticks := 0
	for _, delay := range p.Ticks() {
		assert.NoError(clock.Sleep(t.Context(), delay))
		ticks++
	}

	elapsed := time.Since(startTime)

	assert.InDelta(10, ticks, 2)
	assert.Less(elapsed, 400*time.Millisecond)
}
