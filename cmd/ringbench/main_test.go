package main

import (
	"testing"
	"time"

	"github.com/squadracorsepolito/ringbench"
	"github.com/squadracorsepolito/ringbench/consumer"
	"github.com/stretchr/testify/assert"
)

func Test_parseFlags(t *testing.T) {
	assert := assert.New(t)

	cfg, err := parseFlags([]string{
		"-slot-bytes", "1024",
		"-slot-count", "4",
		"-duration-seconds", "2",
		"-slots-per-second", "1000",
		"-debug",
		"-wait-mode", "poll",
		"-readers", "3",
	})
	if !assert.NoError(err) {
		return
	}

	assert.Equal(1024, cfg.SlotBytes)
	assert.Equal(4, cfg.SlotCount)
	assert.Equal(2*time.Second, cfg.Duration)
	assert.Equal(1000, cfg.SlotsPerSecond)
	assert.True(cfg.Debug)
	assert.Equal(consumer.WaitModePoll, cfg.WaitMode)
	assert.Equal(3, cfg.Readers)
	assert.False(cfg.OTLP)
	assert.Empty(cfg.QuestDBAddress)
}

func Test_parseFlags_Required(t *testing.T) {
	_, err := parseFlags([]string{"-slot-bytes", "1024", "-slot-count", "4"})
	assert.ErrorIs(t, err, ringbench.ErrInvalidConfig)
}

func Test_parseFlags_WaitMode(t *testing.T) {
	_, err := parseFlags([]string{
		"-slot-bytes", "1024",
		"-slot-count", "4",
		"-duration-seconds", "2",
		"-slots-per-second", "1000",
		"-wait-mode", "spin",
	})
	assert.ErrorIs(t, err, consumer.ErrInvalidConfig)
}
