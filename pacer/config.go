package pacer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by [Config.Validate].
var ErrInvalidConfig = errors.New("pacer: invalid config")

// Config is the configuration of a [Pacer].
type Config struct {
	// Duration is the total run time.
	Duration time.Duration

	// Rate is the target number of ticks per second.
	Rate int
}

func NewDefaultConfig() *Config {
	return &Config{
		Duration: 10 * time.Second,

		Rate: 1000,
	}
}

// Interval returns the target time between two ticks.
func (cfg *Config) Interval() time.Duration {
	return time.Second / time.Duration(cfg.Rate)
}

func (cfg *Config) Validate() error {
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfig, cfg.Duration)
	}

	if cfg.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive, got %d", ErrInvalidConfig, cfg.Rate)
	}

	if cfg.Interval() <= 0 {
		return fmt.Errorf("%w: rate %d is above one tick per nanosecond", ErrInvalidConfig, cfg.Rate)
	}

	return nil
}
