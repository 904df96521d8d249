package consumer

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by [Config.Validate].
var ErrInvalidConfig = errors.New("consumer: invalid config")

// WaitMode states how a consumer waits when it is caught up with the writer.
type WaitMode uint8

const (
	// WaitModeNotify parks the consumer until the writer writes or closes.
	WaitModeNotify WaitMode = iota
	// WaitModePoll sleeps for a fixed interval and polls again.
	WaitModePoll
)

func (wm WaitMode) String() string {
	switch wm {
	case WaitModeNotify:
		return "notify"
	case WaitModePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// ParseWaitMode is the inverse of [WaitMode.String].
func ParseWaitMode(s string) (WaitMode, error) {
	switch s {
	case "notify":
		return WaitModeNotify, nil
	case "poll":
		return WaitModePoll, nil
	default:
		return 0, fmt.Errorf("%w: unknown wait mode %q", ErrInvalidConfig, s)
	}
}

type Config struct {
	Name string

	WaitMode WaitMode

	// PollInterval is the sleep between two polls in WaitModePoll,
	// usually half of the producer frame interval.
	PollInterval time.Duration

	// ProgressEvery is the number of read frames between two progress logs.
	ProgressEvery int

	// DrainTimeout bounds how long the consumer keeps reading after its
	// context is done, waiting for the writer to close the ring buffer.
	DrainTimeout time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		Name: "reader",

		WaitMode: WaitModeNotify,

		PollInterval: 500 * time.Microsecond,

		ProgressEvery: 100,

		DrainTimeout: time.Second,
	}
}

func (cfg *Config) Validate() error {
	if cfg.WaitMode != WaitModeNotify && cfg.WaitMode != WaitModePoll {
		return fmt.Errorf("%w: unknown wait mode %d", ErrInvalidConfig, cfg.WaitMode)
	}

	if cfg.WaitMode == WaitModePoll && cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %s", ErrInvalidConfig, cfg.PollInterval)
	}

	if cfg.ProgressEvery <= 0 {
		return fmt.Errorf("%w: progress interval must be positive, got %d", ErrInvalidConfig, cfg.ProgressEvery)
	}

	if cfg.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain timeout must not be negative, got %s", ErrInvalidConfig, cfg.DrainTimeout)
	}

	return nil
}
