package eventbus

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/failure"
	"github.com/randalmurphal/eventbus/pkg/eventbus/hierarchy"
	"github.com/randalmurphal/eventbus/pkg/eventbus/introspect"
	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/workerpool"
)

// busConfig holds construction settings for a Bus.
type busConfig struct {
	id            string
	logger        *slog.Logger
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	mainLoop      *loop.Loop
	pool          *workerpool.Pool
	poolOpts      []workerpool.Option
	handlers      *introspect.Cache
	scanner       introspect.Scanner
	closures      *hierarchy.Cache
	failures      failure.Store
	failuresSet   bool
	ownsFailures  bool
	sweepInterval time.Duration
}

// defaultBusConfig returns the default construction settings.
func defaultBusConfig() busConfig {
	return busConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

// Option configures a Bus.
type Option func(*busConfig)

// WithIdentifier names the bus in logs, spans and failure records.
// Default: a random UUID.
func WithIdentifier(id string) Option {
	return func(c *busConfig) {
		if id != "" {
			c.id = id
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
// A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithMetrics enables dispatch and delivery metrics.
//
// Example:
//
//	bus := eventbus.New(eventbus.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *busConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables dispatch and delivery spans.
func WithTracing(s observability.SpanManager) Option {
	return func(c *busConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithMainLoop makes l the target of Main delivery. The bus does not
// close a loop it was given. Default: a loop owned by the bus.
func WithMainLoop(l *loop.Loop) Option {
	return func(c *busConfig) {
		c.mainLoop = l
	}
}

// WithWorkerPool makes p the target of Background delivery, so several
// buses can share one pool. The bus does not close a pool it was given.
// Default: a pool owned by the bus.
func WithWorkerPool(p *workerpool.Pool) Option {
	return func(c *busConfig) {
		c.pool = p
	}
}

// WithWorkerPoolOptions configures the pool the bus creates when
// WithWorkerPool is not used.
func WithWorkerPoolOptions(opts ...workerpool.Option) Option {
	return func(c *busConfig) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

// WithIntrospector shares a handler table cache between buses.
func WithIntrospector(cache *introspect.Cache) Option {
	return func(c *busConfig) {
		c.handlers = cache
	}
}

// WithScanner replaces reflection-based handler discovery for the cache
// the bus creates. Ignored when WithIntrospector is used.
func WithScanner(s introspect.Scanner) Option {
	return func(c *busConfig) {
		c.scanner = s
	}
}

// WithClosureCache shares an event type closure cache between buses.
func WithClosureCache(cache *hierarchy.Cache) Option {
	return func(c *busConfig) {
		c.closures = cache
	}
}

// WithFailureSink records every handler failure in store. The bus does
// not close a store it was given. With FromSettings it replaces the
// configured sink, which is then never opened; a nil store disables it.
func WithFailureSink(store failure.Store) Option {
	return func(c *busConfig) {
		c.failures = store
		c.failuresSet = true
		c.ownsFailures = false
	}
}

// withOwnedFailureSink is WithFailureSink for stores the bus opened itself.
func withOwnedFailureSink(store failure.Store) Option {
	return func(c *busConfig) {
		c.failures = store
		c.failuresSet = true
		c.ownsFailures = true
	}
}

// WithSweepInterval purges bindings of collected subscribers every d.
// Default: 0 (disabled). Unregister(nil) sweeps on demand.
func WithSweepInterval(d time.Duration) Option {
	return func(c *busConfig) {
		if d >= 0 {
			c.sweepInterval = d
		}
	}
}
