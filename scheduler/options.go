// File: scheduler/options.go
// Package scheduler defines functional options for scheduler construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/evsched/reactor"
)

// Option customizes scheduler initialization.
type Option func(*config)

type config struct {
	backend         reactor.Backend
	logger          zerolog.Logger
	shutdownTimeout time.Duration
	pinThreads      bool
}

func defaultConfig() config {
	return config{
		backend:         reactor.BackendAuto,
		logger:          zerolog.Nop(),
		shutdownTimeout: 500 * time.Millisecond,
	}
}

// WithBackend selects the polling mechanism for every loop. The default
// picks the platform's preferred backend; see reactor.AvailableBackends.
func WithBackend(b reactor.Backend) Option {
	return func(c *config) {
		c.backend = b
	}
}

// WithLogger attaches a structured logger. The default discards
// everything, as befits a library.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.logger = log
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for loop threads to
// report stopped before proceeding with teardown regardless.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithAffinity pins loop thread i to logical CPU i mod NumCPU on
// platforms that support it.
func WithAffinity(enabled bool) Option {
	return func(c *config) {
		c.pinThreads = enabled
	}
}
