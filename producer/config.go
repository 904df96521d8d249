package producer

import (
	"errors"
	"fmt"

	"github.com/squadracorsepolito/ringbench/pacer"
)

// ErrInvalidConfig is returned by [Config.Validate].
var ErrInvalidConfig = errors.New("producer: invalid config")

type Config struct {
	// SlotBytes is the size of every generated frame.
	SlotBytes int

	// ProgressEvery is the number of written frames between two progress logs.
	ProgressEvery int

	Pacer *pacer.Config
}

func NewDefaultConfig() *Config {
	return &Config{
		SlotBytes: 1024,

		ProgressEvery: 100,

		Pacer: pacer.NewDefaultConfig(),
	}
}

func (cfg *Config) Validate() error {
	if cfg.SlotBytes <= 0 {
		return fmt.Errorf("%w: slot bytes must be positive, got %d", ErrInvalidConfig, cfg.SlotBytes)
	}

	if cfg.ProgressEvery <= 0 {
		return fmt.Errorf("%w: progress interval must be positive, got %d", ErrInvalidConfig, cfg.ProgressEvery)
	}

	if cfg.Pacer == nil {
		return fmt.Errorf("%w: missing pacer config", ErrInvalidConfig)
	}

	return cfg.Pacer.Validate()
}
