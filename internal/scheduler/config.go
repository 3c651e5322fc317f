package scheduler

import (
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
)

const (
	DefaultTick          = time.Second
	DefaultPollTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

type Config struct {
	// Tick is the scheduling granularity. No cadence may be shorter.
	Tick time.Duration
	// PollTimeout bounds one Collect call, retries included.
	PollTimeout time.Duration
	// WriteTimeout bounds one Sink.Write call.
	WriteTimeout time.Duration
	// ShutdownGrace is how long in-flight polls may finish after cancellation.
	ShutdownGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		Tick:          DefaultTick,
		PollTimeout:   DefaultPollTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		ShutdownGrace: DefaultShutdownGrace,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch {
	case c.Tick <= 0:
		return errFactory.WithData(ErrInvalidConfig, struct{ Tick time.Duration }{c.Tick})
	case c.PollTimeout <= 0:
		return errFactory.WithData(ErrInvalidConfig, struct{ PollTimeout time.Duration }{c.PollTimeout})
	case c.WriteTimeout <= 0:
		return errFactory.WithData(ErrInvalidConfig, struct{ WriteTimeout time.Duration }{c.WriteTimeout})
	case c.ShutdownGrace < 0:
		return errFactory.WithData(ErrInvalidConfig, struct{ ShutdownGrace time.Duration }{c.ShutdownGrace})
	}

	return nil
}
