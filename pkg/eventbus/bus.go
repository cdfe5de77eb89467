package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/failure"
	"github.com/randalmurphal/eventbus/pkg/eventbus/hierarchy"
	"github.com/randalmurphal/eventbus/pkg/eventbus/introspect"
	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/workerpool"
)

// Handlers marks a struct level as declaring handler methods. See the
// package documentation for the tag syntax.
type Handlers = introspect.Handlers

// Bus is an in-process publish/subscribe event bus. All methods are safe
// for concurrent use.
type Bus struct {
	id      string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	closures *hierarchy.Cache
	handlers *introspect.Cache
	subs     *subscriptionRegistry
	sticky   *stickyStore

	dispatchLoop *loop.Loop
	mainLoop     *loop.Loop
	ownsMain     bool
	pool         *workerpool.Pool
	ownsPool     bool

	failures     failure.Store
	ownsFailures bool

	sweepInterval time.Duration
	closed        atomic.Bool
}

// New creates a bus and starts its dispatch loop.
func New(opts ...Option) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	b := &Bus{
		id:            cfg.id,
		logger:        observability.EnrichLogger(cfg.logger, cfg.id),
		metrics:       cfg.metrics,
		spans:         cfg.spans,
		closures:      cfg.closures,
		handlers:      cfg.handlers,
		subs:          newSubscriptionRegistry(),
		sticky:        newStickyStore(),
		mainLoop:      cfg.mainLoop,
		pool:          cfg.pool,
		failures:      cfg.failures,
		ownsFailures:  cfg.ownsFailures,
		sweepInterval: cfg.sweepInterval,
	}
	if b.closures == nil {
		b.closures = hierarchy.NewCache()
	}
	if b.handlers == nil {
		b.handlers = introspect.NewCache(cfg.scanner)
	}

	b.dispatchLoop = loop.New(b.id+"/dispatch", loop.WithLogger(b.logger))
	if b.mainLoop == nil {
		b.mainLoop = loop.New(b.id+"/main", loop.WithLogger(b.logger))
		b.ownsMain = true
	}
	if b.pool == nil {
		poolOpts := append([]workerpool.Option{workerpool.WithLogger(b.logger)}, cfg.poolOpts...)
		b.pool = workerpool.New(poolOpts...)
		b.ownsPool = true
	}

	if b.sweepInterval > 0 {
		b.scheduleSweep()
	}
	return b
}

// FromSettings creates a bus from file-level settings. opts are applied
// after the settings and override them. The configured failure store is
// opened, and closed by Close, only when opts do not supply one.
func FromSettings(settings config.Settings, opts ...Option) (*Bus, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	base := []Option{
		WithIdentifier(settings.Identifier),
		WithSweepInterval(settings.SweepInterval),
		WithWorkerPoolOptions(
			workerpool.WithSize(settings.Workers.Size),
			workerpool.WithIdleTimeout(settings.Workers.IdleTimeout),
		),
	}
	if settings.Metrics {
		base = append(base, WithMetrics(observability.NewMetricsRecorder()))
	}
	if settings.Tracing {
		base = append(base, WithTracing(observability.NewSpanManager()))
	}

	var override busConfig
	for _, opt := range opts {
		opt(&override)
	}
	if !override.failuresSet {
		store, err := failure.Open(settings.Failures)
		if err != nil {
			return nil, fmt.Errorf("open failure store: %w", err)
		}
		if store != nil {
			base = append(base, withOwnedFailureSink(store))
		}
	}

	return New(append(base, opts...)...), nil
}

// ID returns the bus identifier.
func (b *Bus) ID() string { return b.id }

// Failures returns the failure sink, or nil when none is set.
func (b *Bus) Failures() failure.Store { return b.failures }

// MainLoop returns the loop Main delivery posts to.
func (b *Bus) MainLoop() *loop.Loop { return b.mainLoop }

// Register binds every handler the subscriber declares, across its
// embedded levels. subscriber must be a non-nil pointer to a non-empty
// struct. If ctx carries a loop (see loop.FromContext), Default-policy
// handlers of this subscriber run on it; otherwise they run on the worker
// pool. Registering again adds no duplicate bindings and re-applies the
// loop assignment.
//
// Retained sticky values the subscriber handles are dispatched to it
// alone before Register returns; its Inline handlers have run by then.
//
// A malformed declaration returns a *ConfigurationError and registers
// nothing.
func (b *Bus) Register(ctx context.Context, subscriber any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	r, bindings, err := b.resolveAll(subscriber)
	if err != nil {
		return err
	}

	b.subs.assignDefault(ctx, r)
	added := b.subs.add(bindings)

	replayed := 0
	for _, event := range b.sticky.snapshot() {
		if !handlesAny(bindings, b.closures.Of(event)) {
			continue
		}
		b.dispatch(ctx, event, r, true)
		replayed++
	}

	observability.LogRegister(b.logger, reflect.TypeOf(subscriber).String(), added, replayed)
	runtime.KeepAlive(subscriber)
	return nil
}

func handlesAny(bindings map[reflect.Type][]*Subscription, closure *hierarchy.Closure) bool {
	for i := range closure.Len() {
		if len(bindings[closure.At(i).Type]) > 0 {
			return true
		}
	}
	return false
}

// Unregister removes every binding of subscriber and clears its loop
// assignment. Bindings of subscribers that have been collected are purged
// too; Unregister(nil) does only that. It returns the number of bindings
// removed.
func (b *Bus) Unregister(subscriber any) int {
	if subscriber == nil {
		return b.sweep(context.Background())
	}
	r, err := subscriberRef(subscriber)
	if err != nil {
		return b.sweep(context.Background())
	}
	removed := b.subs.remove(r, true)
	observability.LogUnregister(b.logger, reflect.TypeOf(subscriber).String(), removed)
	runtime.KeepAlive(subscriber)
	return removed
}

func (b *Bus) sweep(ctx context.Context) int {
	removed := b.subs.remove(ref{}, false)
	b.metrics.RecordSweep(ctx, removed)
	observability.LogSweep(b.logger, removed)
	return removed
}

func (b *Bus) scheduleSweep() {
	_ = b.dispatchLoop.PostDelayed(func(ctx context.Context) {
		if b.closed.Load() {
			return
		}
		b.sweep(ctx)
		b.scheduleSweep()
	}, b.sweepInterval)
}

// Post queues event for dispatch on the bus's dispatch loop and returns
// immediately. Events posted from one goroutine are dispatched in order.
func (b *Bus) Post(ctx context.Context, event any) error {
	return b.enqueue(ctx, event, nil, 0)
}

// PostTo is Post restricted to subscriber's handlers.
func (b *Bus) PostTo(ctx context.Context, event, subscriber any) error {
	if subscriber == nil {
		return ErrNilSubscriber
	}
	return b.enqueue(ctx, event, subscriber, 0)
}

// PostDelayed queues event for dispatch no earlier than delay from now.
func (b *Bus) PostDelayed(ctx context.Context, event any, delay time.Duration) error {
	return b.enqueue(ctx, event, nil, delay)
}

// PostToDelayed is PostDelayed restricted to subscriber's handlers.
func (b *Bus) PostToDelayed(ctx context.Context, event, subscriber any, delay time.Duration) error {
	if subscriber == nil {
		return ErrNilSubscriber
	}
	return b.enqueue(ctx, event, subscriber, delay)
}

// enqueue validates and posts a dispatch job. A targeted job holds only a
// ref, so a queued event does not keep its target alive.
func (b *Bus) enqueue(ctx context.Context, event, subscriber any, delay time.Duration) error {
	if err := b.checkPublish(event); err != nil {
		return err
	}
	var target ref
	hasTarget := subscriber != nil
	if hasTarget {
		r, err := subscriberRef(subscriber)
		if err != nil {
			return err
		}
		target = r
	}

	parent := trace.SpanContextFromContext(ctx)
	err := b.dispatchLoop.PostDelayed(func(jobCtx context.Context) {
		b.dispatch(trace.ContextWithSpanContext(jobCtx, parent), event, target, hasTarget)
	}, delay)
	if errors.Is(err, loop.ErrClosed) {
		return ErrBusClosed
	}
	return err
}

// Send dispatches event in the calling goroutine. Inline handlers have
// run when it returns; other policies still run asynchronously.
func (b *Bus) Send(ctx context.Context, event any) error {
	if err := b.checkPublish(event); err != nil {
		return err
	}
	b.dispatch(ctx, event, ref{}, false)
	return nil
}

// SendTo is Send restricted to subscriber's handlers.
func (b *Bus) SendTo(ctx context.Context, event, subscriber any) error {
	if err := b.checkPublish(event); err != nil {
		return err
	}
	r, err := subscriberRef(subscriber)
	if err != nil {
		return err
	}
	b.dispatch(ctx, event, r, true)
	runtime.KeepAlive(subscriber)
	return nil
}

// SendSticky retains event as the last value of its runtime type, then
// sends it. Subscribers registered later receive it during Register.
func (b *Bus) SendSticky(ctx context.Context, event any) error {
	if err := b.checkPublish(event); err != nil {
		return err
	}
	b.sticky.put(event)
	b.dispatch(ctx, event, ref{}, false)
	return nil
}

// StickyEvent returns the retained value for eventType.
func (b *Bus) StickyEvent(eventType reflect.Type) (any, bool) {
	return b.sticky.get(eventType)
}

// RemoveStickyEvent clears the retained value for eventType and reports
// whether there was one. Nothing is redelivered.
func (b *Bus) RemoveStickyEvent(eventType reflect.Type) bool {
	return b.sticky.remove(eventType)
}

// Subscriptions returns the live bindings whose handler accepts exactly
// eventType.
func (b *Bus) Subscriptions(eventType reflect.Type) []*Subscription {
	all := b.subs.subscriptions(eventType)
	live := make([]*Subscription, 0, len(all))
	for _, sub := range all {
		if sub.Live() {
			live = append(live, sub)
		}
	}
	return live
}

// SubscriptionCount returns the number of bindings held, including ones
// whose subscriber was collected but not yet swept.
func (b *Bus) SubscriptionCount() int {
	return b.subs.count()
}

func (b *Bus) checkPublish(event any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if event == nil {
		return ErrNilEvent
	}
	switch v := reflect.ValueOf(event); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if v.IsNil() {
			return ErrNilEvent
		}
	}
	return nil
}

// Close stops accepting work and drains the dispatch loop: posts already
// due are dispatched, while PostDelayed and PostToDelayed events whose
// delay has not elapsed are dropped and logged. It then shuts down
// the main loop and worker pool the bus owns and closes a failure store
// it opened. Loops, pools and stores passed in through options are left
// running. Calling Close again returns nil.
func (b *Bus) Close(ctx context.Context) error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := b.dispatchLoop.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	var g errgroup.Group
	if b.ownsMain {
		g.Go(func() error { return b.mainLoop.Close(ctx) })
	}
	if b.ownsPool {
		g.Go(func() error { return b.pool.Close(ctx) })
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if b.ownsFailures && b.failures != nil {
		if err := b.failures.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close failure store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TypeOf returns the reflect.Type of E, for the type-keyed sticky API.
//
//	bus.RemoveStickyEvent(eventbus.TypeOf[*Login]())
func TypeOf[E any]() reflect.Type {
	return reflect.TypeFor[E]()
}

// Sticky returns the retained value of type E.
func Sticky[E any](b *Bus) (E, bool) {
	v, ok := b.sticky.get(reflect.TypeFor[E]())
	if !ok {
		var zero E
		return zero, false
	}
	e, ok := v.(E)
	return e, ok
}

// RemoveSticky clears the retained value of type E.
func RemoveSticky[E any](b *Bus) bool {
	return b.sticky.remove(reflect.TypeFor[E]())
}
