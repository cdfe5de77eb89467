package eventbus_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/failure"
	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
)

type Tick struct{ N int }

type Sequencer struct {
	_   eventbus.Handlers `subscribe:"OnTick=main"`
	mu  sync.Mutex
	got []int
}

func (s *Sequencer) OnTick(t Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t.N)
}

type DefaultAuditor struct {
	_   eventbus.Handlers `subscribe:"OnLogin"`
	rec recorder
}

func (a *DefaultAuditor) OnLogin(e *Login) { a.rec.add(e.Remote) }

type BackgroundCounter struct {
	_ eventbus.Handlers `subscribe:"OnTick=pool"`
	n atomic.Int64
}

func (c *BackgroundCounter) OnTick(Tick) { c.n.Add(1) }

var errHandler = errors.New("handler failed")

type Fragile struct {
	_   eventbus.Handlers `subscribe:"OnPanic=inline,OnFail=inline,OnLogin=inline,OnTick=background"`
	rec recorder
}

func (f *Fragile) OnPanic(*Login)      { panic("boom") }
func (f *Fragile) OnFail(*Login) error { return errHandler }
func (f *Fragile) OnLogin(e *Login)    { f.rec.add(e.Remote) }
func (f *Fragile) OnTick(t Tick)       { panic(t.N) }

func TestMainDeliveryPreservesPostOrder(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(eventbus.WithLogger(nil))
	seq := &Sequencer{}
	require.NoError(t, bus.Register(ctx, seq))

	const n = 10000
	for i := range n {
		require.NoError(t, bus.Post(ctx, Tick{N: i}))
	}

	closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(closeCtx))

	require.Len(t, seq.got, n)
	for i, v := range seq.got {
		if v != i {
			t.Fatalf("delivery %d got tick %d", i, v)
		}
	}
}

func TestDefaultDeliveryRunsOnRegisteringLoop(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)
	ui := loop.New("ui")
	t.Cleanup(func() { _ = ui.Close(context.Background()) })

	onLoop, onPool := &DefaultAuditor{}, &DefaultAuditor{}
	errc := make(chan error, 1)
	require.NoError(t, ui.Post(func(jobCtx context.Context) {
		errc <- bus.Register(jobCtx, onLoop)
	}))
	require.NoError(t, <-errc)
	require.NoError(t, bus.Register(ctx, onPool))

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	require.NoError(t, ui.Post(func(context.Context) { <-release }))

	require.NoError(t, bus.Send(ctx, login("u", "r")))

	assert.Eventually(t, func() bool { return onPool.rec.len() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return onLoop.rec.len() > 0 }, 50*time.Millisecond, tick)

	unblock()
	assert.Eventually(t, func() bool { return onLoop.rec.len() == 1 }, waitFor, tick)
}

func TestRegisterFromPlainContextClearsLoop(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)
	ui := loop.New("ui")
	t.Cleanup(func() { _ = ui.Close(context.Background()) })

	a := &DefaultAuditor{}
	errc := make(chan error, 1)
	require.NoError(t, ui.Post(func(jobCtx context.Context) {
		errc <- bus.Register(jobCtx, a)
	}))
	require.NoError(t, <-errc)
	require.NoError(t, bus.Register(ctx, a))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	require.NoError(t, ui.Post(func(context.Context) { <-release }))

	require.NoError(t, bus.Send(ctx, login("u", "pool")))
	assert.Eventually(t, func() bool { return a.rec.len() == 1 }, waitFor, tick)
}

func TestBackgroundDelivery(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)
	c := &BackgroundCounter{}
	require.NoError(t, bus.Register(ctx, c))

	for i := range 100 {
		require.NoError(t, bus.Post(ctx, Tick{N: i}))
	}
	assert.Eventually(t, func() bool { return c.n.Load() == 100 }, waitFor, tick)
}

func TestHandlerFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := failure.NewMemoryStore(16)
	bus := newBus(t, eventbus.WithFailureSink(store), eventbus.WithIdentifier("fragile"))
	f := &Fragile{}
	require.NoError(t, bus.Register(ctx, f))

	require.NoError(t, bus.Send(ctx, login("u", "survived")))
	assert.Equal(t, []string{"survived"}, f.rec.values())

	records, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byMethod := make(map[string]failure.Record)
	for _, rec := range records {
		byMethod[rec.Method] = rec
		assert.Equal(t, "fragile", rec.Bus)
		assert.Equal(t, "*eventbus_test.Login", rec.EventType)
		assert.Equal(t, "*eventbus_test.Fragile", rec.Subscriber)
		assert.Equal(t, "inline", rec.Delivery)
		assert.NotEmpty(t, rec.ID)
	}

	panicked := byMethod["eventbus_test.Fragile.OnPanic"]
	assert.True(t, panicked.Panicked)
	assert.Equal(t, "panic: boom", panicked.Message)
	assert.NotEmpty(t, panicked.Stack)

	failed := byMethod["eventbus_test.Fragile.OnFail"]
	assert.False(t, failed.Panicked)
	assert.Equal(t, errHandler.Error(), failed.Message)
	assert.Empty(t, failed.Stack)
}

func TestBackgroundPanicDoesNotStopPool(t *testing.T) {
	ctx := context.Background()
	store := failure.NewMemoryStore(64)
	bus := newBus(t, eventbus.WithFailureSink(store))
	f := &Fragile{}
	require.NoError(t, bus.Register(ctx, f))
	c := &BackgroundCounter{}
	require.NoError(t, bus.Register(ctx, c))

	for i := range 20 {
		require.NoError(t, bus.Post(ctx, Tick{N: i}))
	}

	assert.Eventually(t, func() bool {
		n, err := store.Count()
		return err == nil && n == 20 && c.n.Load() == 20
	}, waitFor, tick)
	runtime.KeepAlive(f)
}

func TestInvocationErrorPanicked(t *testing.T) {
	pe := &eventbus.PanicError{Value: errHandler}
	ierr := &eventbus.InvocationError{Handler: "x.Y.OnZ", EventType: "x.Z", Delivery: eventbus.Main, Err: pe}

	assert.True(t, ierr.Panicked())
	assert.ErrorIs(t, ierr, errHandler)
	assert.Equal(t, "handler x.Y.OnZ (main delivery) failed on x.Z: panic: handler failed", ierr.Error())

	plain := &eventbus.InvocationError{Err: errHandler}
	assert.False(t, plain.Panicked())
	assert.Nil(t, (&eventbus.PanicError{Value: "text"}).Unwrap())
}

// providerSpans is a SpanManager over a test tracer provider.
type providerSpans struct{ tracer trace.Tracer }

func (p providerSpans) StartDispatchSpan(ctx context.Context, _, eventType string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "dispatch "+eventType)
}

func (p providerSpans) StartDeliverySpan(ctx context.Context, handler, delivery string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, "deliver "+delivery+" "+handler)
}

func (p providerSpans) EndSpanWithError(span trace.Span, _ error) { span.End() }

func (p providerSpans) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func TestQueuedDeliveryKeepsDispatchSpanParent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx := context.Background()
	bus := newBus(t, eventbus.WithTracing(providerSpans{tracer: tp.Tracer("test")}))
	seq := &Sequencer{}
	require.NoError(t, bus.Register(ctx, seq))

	require.NoError(t, bus.Post(ctx, Tick{N: 1}))

	var spans tracetest.SpanStubs
	require.Eventually(t, func() bool {
		spans = exporter.GetSpans()
		return len(spans) == 2
	}, waitFor, tick)

	byName := make(map[string]tracetest.SpanStub)
	for _, s := range spans {
		byName[s.Name] = s
	}
	dispatch, ok := byName["dispatch eventbus_test.Tick"]
	require.True(t, ok)
	deliver, ok := byName["deliver main eventbus_test.Sequencer.OnTick"]
	require.True(t, ok)
	assert.Equal(t, dispatch.SpanContext.SpanID(), deliver.Parent.SpanID())
	assert.Equal(t, dispatch.SpanContext.TraceID(), deliver.SpanContext.TraceID())
	runtime.KeepAlive(seq)
}

func TestDeadEventSpanEvent(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bus := newBus(t, eventbus.WithTracing(providerSpans{tracer: tp.Tracer("test")}))
	require.NoError(t, bus.Send(context.Background(), Plain{N: 3}))

	var found bool
	for _, s := range exporter.GetSpans() {
		if s.Name != "dispatch eventbus_test.Plain" {
			continue
		}
		for _, ev := range s.Events {
			found = found || ev.Name == "dead_event"
		}
	}
	assert.True(t, found)
}

// Relay sends a second event from inside an inline handler.
type Relay struct {
	_   eventbus.Handlers `subscribe:"OnTick=inline,OnLogin=inline"`
	bus *eventbus.Bus
	rec recorder
}

func (r *Relay) OnTick(Tick) {
	r.rec.add("tick")
	_ = r.bus.Send(context.Background(), login("u", "nested"))
}

func (r *Relay) OnLogin(e *Login) { r.rec.add(e.Remote) }

func TestSendWaitsForNestedInlineSends(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)
	r := &Relay{bus: bus}
	require.NoError(t, bus.Register(ctx, r))

	require.NoError(t, bus.Send(ctx, Tick{N: 1}))

	assert.Equal(t, []string{"tick", "nested"}, r.rec.values())
}

func TestPostedInlineHandlerMaySend(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(eventbus.WithLogger(nil))
	r := &Relay{bus: bus}
	require.NoError(t, bus.Register(ctx, r))

	require.NoError(t, bus.Post(ctx, Tick{N: 1}))
	require.NoError(t, bus.Close(ctx))

	assert.Equal(t, []string{"tick", "nested"}, r.rec.values())
}

func TestUnregisterForgetsRegisteringLoop(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)
	ui := loop.New("ui")
	t.Cleanup(func() { _ = ui.Close(context.Background()) })

	a := &DefaultAuditor{}
	errc := make(chan error, 1)
	require.NoError(t, ui.Post(func(jobCtx context.Context) {
		errc <- bus.Register(jobCtx, a)
	}))
	require.NoError(t, <-errc)
	assert.Equal(t, 1, bus.Unregister(a))
	require.NoError(t, bus.Register(ctx, a))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	require.NoError(t, ui.Post(func(context.Context) { <-release }))

	require.NoError(t, bus.Send(ctx, login("u", "pool")))
	assert.Eventually(t, func() bool { return a.rec.len() == 1 }, waitFor, tick)
}

func TestDefaultDeliveryOnMainLoop(t *testing.T) {
	ctx := context.Background()
	bus := newBus(t)

	a := &DefaultAuditor{}
	errc := make(chan error, 1)
	require.NoError(t, bus.MainLoop().Post(func(jobCtx context.Context) {
		errc <- bus.Register(jobCtx, a)
	}))
	require.NoError(t, <-errc)

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	require.NoError(t, bus.MainLoop().Post(func(context.Context) { <-release }))

	require.NoError(t, bus.Send(ctx, login("u", "main")))
	assert.Never(t, func() bool { return a.rec.len() > 0 }, 50*time.Millisecond, tick)

	unblock()
	assert.Eventually(t, func() bool { return a.rec.len() == 1 }, waitFor, tick)
}
