package reactor

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

const (
	DefaultMaxConns        = 10000
	DefaultReadBufferSize  = 8192
	DefaultMaxEvents       = 256
	DefaultWaitTimeout     = 1000 * time.Millisecond
	DefaultIdleTimeout     = 5 * time.Second
	DefaultSweepInterval   = time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHighWatermark   = 1 << 20
	DefaultLowWatermark    = 256 << 10
)

// Config tunes the reactor. Zero fields take their defaults in
// WithDefaults.
type Config struct {
	// Shards is the number of event loops. 0 means one per CPU.
	Shards int
	// MaxConns caps concurrently open connections. Extra connections are
	// accepted and closed at once.
	MaxConns       int
	ReadBufferSize int
	MaxEvents      int
	WaitTimeout    time.Duration

	// IdleTimeout evicts connections without traffic. Negative disables.
	IdleTimeout time.Duration
	// RequestTimeout bounds how long a partially received request may
	// take before the session is told to time out. 0 disables.
	RequestTimeout  time.Duration
	SweepInterval   time.Duration
	ShutdownTimeout time.Duration

	// Reading is paused while a connection has HighWatermark bytes queued
	// for writing and resumed once it drops to LowWatermark.
	HighWatermark int
	LowWatermark  int
}

// WithDefaults fills zero fields with defaults.
func (c Config) WithDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = runtime.NumCPU()
	}
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.HighWatermark <= 0 {
		c.HighWatermark = DefaultHighWatermark
	}
	if c.LowWatermark <= 0 {
		c.LowWatermark = min(DefaultLowWatermark, c.HighWatermark/4)
	}
	return c
}

// Validate reports inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if c.Shards < 0 {
		errs = append(errs, fmt.Errorf("shards must not be negative, got %d", c.Shards))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max conns must not be negative, got %d", c.MaxConns))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	if d := c.WithDefaults(); d.LowWatermark > d.HighWatermark {
		errs = append(errs, fmt.Errorf("low watermark %d above high watermark %d", d.LowWatermark, d.HighWatermark))
	}
	return errors.Join(errs...)
}
