package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSettings indicates a settings value out of range.
var ErrInvalidSettings = errors.New("invalid settings")

// Failure sink drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// DefaultFailureCapacity is the ring size of the memory failure sink.
const DefaultFailureCapacity = 1024

// WorkerSettings configures the background worker pool.
type WorkerSettings struct {
	// Size is the maximum worker count. Zero uses the pool default.
	Size int
	// IdleTimeout is how long an idle worker lives. Zero uses the pool default.
	IdleTimeout time.Duration
}

// FailureSettings configures where handler failures are recorded.
type FailureSettings struct {
	// Driver is "none", "memory" or "sqlite".
	Driver string
	// Path is the SQLite database path. ":memory:" is allowed.
	Path string
	// Capacity bounds the memory driver.
	Capacity int
}

// Settings is the file-level configuration of a bus.
//
//	identifier: orders
//	sweep_interval: 30s
//	workers:
//	  size: 8
//	  idle_timeout: 10s
//	failures:
//	  driver: sqlite
//	  path: /var/lib/app/failures.db
//	metrics: true
//	tracing: false
type Settings struct {
	Identifier    string
	Workers       WorkerSettings
	SweepInterval time.Duration
	Failures      FailureSettings
	Metrics       bool
	Tracing       bool
}

// DefaultSettings returns settings with no identifier, pool defaults, no
// sweeper, no failure sink, metrics and tracing off.
func DefaultSettings() Settings {
	return Settings{
		Failures: FailureSettings{
			Driver:   DriverNone,
			Capacity: DefaultFailureCapacity,
		},
	}
}

// Settings extracts bus settings, filling gaps from DefaultSettings, and
// validates the result. Every wrongly typed value and unknown key is
// reported, joined into one error.
func (c Config) Settings() (Settings, error) {
	s := DefaultSettings()
	var errs []error

	read(&errs, c.String, "identifier", &s.Identifier)
	read(&errs, c.Duration, "sweep_interval", &s.SweepInterval)
	read(&errs, c.Bool, "metrics", &s.Metrics)
	read(&errs, c.Bool, "tracing", &s.Tracing)
	unknown(&errs, c, "identifier", "sweep_interval", "metrics", "tracing", "workers", "failures")

	if workers, err := c.Section("workers"); err != nil {
		errs = append(errs, err)
	} else {
		read(&errs, workers.Int, "size", &s.Workers.Size)
		read(&errs, workers.Duration, "idle_timeout", &s.Workers.IdleTimeout)
		unknown(&errs, workers, "size", "idle_timeout")
	}

	if failures, err := c.Section("failures"); err != nil {
		errs = append(errs, err)
	} else {
		read(&errs, failures.String, "driver", &s.Failures.Driver)
		read(&errs, failures.String, "path", &s.Failures.Path)
		read(&errs, failures.Int, "capacity", &s.Failures.Capacity)
		unknown(&errs, failures, "driver", "path", "capacity")
	}

	if len(errs) > 0 {
		return Settings{}, errors.Join(errs...)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// read stores get(key) into dst, or records the error and leaves dst as is.
func read[T any](errs *[]error, get func(string, T) (T, error), key string, dst *T) {
	v, err := get(key, *dst)
	if err != nil {
		*errs = append(*errs, err)
		return
	}
	*dst = v
}

func unknown(errs *[]error, c Config, known ...string) {
	for _, k := range c.Unknown(known...) {
		*errs = append(*errs, fmt.Errorf("%w: unknown key %s", ErrInvalidSettings, k))
	}
}

// Validate checks ranges and driver requirements.
func (s Settings) Validate() error {
	if s.Workers.Size < 0 {
		return fmt.Errorf("%w: workers.size must not be negative, got %d", ErrInvalidSettings, s.Workers.Size)
	}
	if s.Workers.IdleTimeout < 0 {
		return fmt.Errorf("%w: workers.idle_timeout must not be negative, got %s", ErrInvalidSettings, s.Workers.IdleTimeout)
	}
	if s.SweepInterval < 0 {
		return fmt.Errorf("%w: sweep_interval must not be negative, got %s", ErrInvalidSettings, s.SweepInterval)
	}

	switch s.Failures.Driver {
	case DriverNone, "":
	case DriverMemory:
		if s.Failures.Capacity < 1 {
			return fmt.Errorf("%w: failures.capacity must be positive, got %d", ErrInvalidSettings, s.Failures.Capacity)
		}
	case DriverSQLite:
		if s.Failures.Path == "" {
			return fmt.Errorf("%w: failures.path is required for the sqlite driver", ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%w: unknown failures.driver %q", ErrInvalidSettings, s.Failures.Driver)
	}
	return nil
}

// LoadSettings reads a config file and extracts its settings.
func LoadSettings(path string) (Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return cfg.Settings()
}
