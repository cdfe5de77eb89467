package eventbus

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// dispatch delivers event to every live matching binding, walking the
// event's type closure in order. With hasTarget set only target's
// bindings match. When nothing matches, a DeadEvent is dispatched once
// with the same target.
func (b *Bus) dispatch(ctx context.Context, event any, target ref, hasTarget bool) {
	closure := b.closures.Of(event)
	eventType := closure.Type().String()

	ctx, span := b.spans.StartDispatchSpan(ctx, b.id, eventType)
	done := observability.TimedOperation()

	value := reflect.ValueOf(event)
	matched := 0
	for i := range closure.Len() {
		entry := closure.At(i)
		subs := b.subs.subscriptions(entry.Type)
		if len(subs) == 0 {
			continue
		}
		arg, ok := entry.Project(value)
		if !ok {
			continue
		}
		for _, sub := range subs {
			if hasTarget && !sub.belongsTo(target) {
				continue
			}
			if !sub.Live() {
				continue
			}
			matched++
			b.deliver(ctx, sub, arg)
		}
	}

	b.metrics.RecordDispatch(ctx, eventType, matched, done())

	if matched == 0 && !isDeadEvent(event) {
		observability.LogDeadEvent(b.logger, eventType)
		b.spans.AddSpanEvent(ctx, "dead_event", attribute.String("event.type", eventType))
		b.dispatch(ctx, DeadEvent{Bus: b, Event: event}, target, hasTarget)
	}
	b.spans.EndSpanWithError(span, nil)
}

func isDeadEvent(event any) bool {
	switch event.(type) {
	case DeadEvent, *DeadEvent:
		return true
	}
	return false
}
