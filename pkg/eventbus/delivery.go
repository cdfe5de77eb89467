package eventbus

import (
	"context"
	"reflect"
	"runtime/debug"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/eventbus/pkg/eventbus/failure"
	"github.com/randalmurphal/eventbus/pkg/eventbus/introspect"
	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// Delivery selects where a handler runs. See introspect.Delivery.
type Delivery = introspect.Delivery

// Delivery policies.
const (
	Default    = introspect.Default
	Inline     = introspect.Inline
	Main       = introspect.Main
	Background = introspect.Background
)

// deliver routes one matched binding to where its handler runs.
func (b *Bus) deliver(ctx context.Context, sub *Subscription, arg reflect.Value) {
	switch sub.Delivery() {
	case introspect.Inline:
		b.invoke(ctx, sub, arg, introspect.Inline)
	case introspect.Main:
		b.enqueueOn(ctx, b.mainLoop, sub, arg, introspect.Main)
	case introspect.Background:
		b.submit(ctx, sub, arg, introspect.Background)
	default:
		if l, ok := b.subs.defaultLoop(sub.key.ref); ok {
			b.enqueueOn(ctx, l, sub, arg, introspect.Default)
			return
		}
		b.submit(ctx, sub, arg, introspect.Default)
	}
}

// enqueueOn runs the handler as a job on l.
func (b *Bus) enqueueOn(ctx context.Context, l *loop.Loop, sub *Subscription, arg reflect.Value, policy introspect.Delivery) {
	parent := trace.SpanContextFromContext(ctx)
	err := l.Post(func(jobCtx context.Context) {
		b.invoke(trace.ContextWithSpanContext(jobCtx, parent), sub, arg, policy)
	})
	if err != nil {
		observability.LogDropped(b.logger, l.Name(), 1)
	}
}

// submit runs the handler on the worker pool.
func (b *Bus) submit(ctx context.Context, sub *Subscription, arg reflect.Value, policy introspect.Delivery) {
	parent := trace.SpanContextFromContext(ctx)
	err := b.pool.Submit(func(taskCtx context.Context) {
		b.invoke(trace.ContextWithSpanContext(taskCtx, parent), sub, arg, policy)
	})
	if err != nil {
		observability.LogDropped(b.logger, "worker pool", 1)
	}
}

// invoke calls the handler in the current goroutine. A panic or returned
// error is reported and swallowed; it never reaches the dispatcher or the
// publisher. A subscriber collected since dispatch is skipped.
func (b *Bus) invoke(ctx context.Context, sub *Subscription, arg reflect.Value, policy introspect.Delivery) {
	handler := sub.Handler()
	ctx, span := b.spans.StartDeliverySpan(ctx, handler, policy.String())
	done := observability.TimedOperation()

	delivered, err := safeCall(sub, arg)
	if !delivered {
		b.spans.EndSpanWithError(span, nil)
		return
	}

	b.metrics.RecordDelivery(ctx, handler, policy.String(), done(), err)
	b.spans.EndSpanWithError(span, err)
	if err != nil {
		b.reportFailure(&InvocationError{
			Handler:    handler,
			Subscriber: sub.SubscriberType().String(),
			EventType:  arg.Type().String(),
			Delivery:   policy,
			Err:        err,
		})
	}
}

func safeCall(sub *Subscription, arg reflect.Value) (delivered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			delivered = true
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return sub.call(arg)
}

func (b *Bus) reportFailure(ierr *InvocationError) {
	panicked := ierr.Panicked()
	observability.LogDeliveryFailure(b.logger, ierr.Handler, ierr.EventType, ierr.Delivery.String(), ierr.Err, panicked)

	if b.failures == nil {
		return
	}
	rec := failure.Record{
		Bus:        b.id,
		EventType:  ierr.EventType,
		Subscriber: ierr.Subscriber,
		Method:     ierr.Handler,
		Delivery:   ierr.Delivery.String(),
		Message:    ierr.Err.Error(),
		Panicked:   panicked,
	}
	if pe, ok := ierr.Err.(*PanicError); ok {
		rec.Stack = string(pe.Stack)
	}
	if err := b.failures.Save(rec); err != nil {
		observability.LogFailureSinkError(b.logger, ierr.Handler, err)
	}
}
