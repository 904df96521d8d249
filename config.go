package ringbench

import (
	"errors"
	"fmt"
	"time"

	"github.com/squadracorsepolito/ringbench/consumer"
	"github.com/squadracorsepolito/ringbench/pacer"
	"github.com/squadracorsepolito/ringbench/producer"
)

// ErrInvalidConfig is returned by [Config.Validate].
var ErrInvalidConfig = errors.New("ringbench: invalid config")

// Config is the configuration of a benchmark run.
type Config struct {
	SlotBytes      int
	SlotCount      int
	Duration       time.Duration
	SlotsPerSecond int

	// Debug only increases the log verbosity.
	Debug bool

	Readers  int
	WaitMode consumer.WaitMode

	// DrainTimeout bounds the time readers keep draining after a cancel.
	DrainTimeout time.Duration

	// ProgressEvery is the number of frames between two progress logs.
	ProgressEvery int

	// OTLP enables the OpenTelemetry exporters.
	OTLP bool
	// QuestDBAddress enables the QuestDB stats sink when not empty.
	QuestDBAddress string
}

func NewDefaultConfig() *Config {
	return &Config{
		SlotBytes:      1024,
		SlotCount:      4,
		Duration:       2 * time.Second,
		SlotsPerSecond: 1000,

		Readers:  1,
		WaitMode: consumer.WaitModeNotify,

		DrainTimeout: time.Second,

		ProgressEvery: 100,
	}
}

func (cfg *Config) Validate() error {
	if cfg.SlotBytes <= 0 {
		return fmt.Errorf("%w: slot bytes must be positive, got %d", ErrInvalidConfig, cfg.SlotBytes)
	}

	if cfg.SlotCount <= 0 {
		return fmt.Errorf("%w: slot count must be positive, got %d", ErrInvalidConfig, cfg.SlotCount)
	}

	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfig, cfg.Duration)
	}

	if cfg.SlotsPerSecond <= 0 {
		return fmt.Errorf("%w: slots per second must be positive, got %d", ErrInvalidConfig, cfg.SlotsPerSecond)
	}

	if cfg.Readers < 0 {
		return fmt.Errorf("%w: readers must not be negative, got %d", ErrInvalidConfig, cfg.Readers)
	}

	if cfg.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout must not be negative, got %s", ErrInvalidConfig, cfg.DrainTimeout)
	}

	if cfg.ProgressEvery <= 0 {
		return fmt.Errorf("%w: progress interval must be positive, got %d", ErrInvalidConfig, cfg.ProgressEvery)
	}

	return nil
}

func (cfg *Config) pacerConfig() *pacer.Config {
	return &pacer.Config{
		Duration: cfg.Duration,
		Rate:     cfg.SlotsPerSecond,
	}
}

// ProducerConfig returns the configuration of the producer stage.
func (cfg *Config) ProducerConfig() *producer.Config {
	return &producer.Config{
		SlotBytes:     cfg.SlotBytes,
		ProgressEvery: cfg.ProgressEvery,
		Pacer:         cfg.pacerConfig(),
	}
}

// ConsumerConfig returns the configuration of the idx-th consumer stage.
// In poll mode the consumer sleeps for half of the frame interval.
func (cfg *Config) ConsumerConfig(idx int) *consumer.Config {
	return &consumer.Config{
		Name:          fmt.Sprintf("reader-%d", idx),
		WaitMode:      cfg.WaitMode,
		PollInterval:  cfg.pacerConfig().Interval() / 2,
		ProgressEvery: cfg.ProgressEvery,
		DrainTimeout:  cfg.DrainTimeout,
	}
}
