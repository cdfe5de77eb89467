package eventbus

import (
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/hierarchy"
	"github.com/randalmurphal/eventbus/pkg/eventbus/introspect"
)

// subscriptionKey identifies a binding: one handler declaration on one
// subscriber instance.
type subscriptionKey struct {
	ref     ref
	handler *introspect.Descriptor
}

// Subscription binds one handler method to one subscriber instance. It
// does not keep the subscriber alive.
type Subscription struct {
	key   subscriptionKey
	elem  reflect.Type    // subscriber struct type
	level hierarchy.Level // path from the subscriber to the declaring level
}

func newSubscription(r ref, elem reflect.Type, level hierarchy.Level, d *introspect.Descriptor) *Subscription {
	return &Subscription{
		key:   subscriptionKey{ref: r, handler: d},
		elem:  elem,
		level: level,
	}
}

// EventType returns the handler's parameter type.
func (s *Subscription) EventType() reflect.Type { return s.key.handler.EventType }

// Delivery returns the declared delivery policy.
func (s *Subscription) Delivery() introspect.Delivery { return s.key.handler.Delivery }

// Method returns the handler method name.
func (s *Subscription) Method() string { return s.key.handler.Method.Name }

// Handler returns "Level.Method" for logs.
func (s *Subscription) Handler() string { return s.key.handler.Name() }

// SubscriberType returns the subscriber's pointer type.
func (s *Subscription) SubscriberType() reflect.Type { return reflect.PointerTo(s.elem) }

// Live reports whether the subscriber has not been collected.
func (s *Subscription) Live() bool { return s.key.ref.Value() != nil }

// Subscriber returns the subscriber, or nil once it has been collected.
func (s *Subscription) Subscriber() any {
	v, ok := deref(s.key.ref, s.elem)
	if !ok {
		return nil
	}
	return v.Interface()
}

// Equal reports whether both bind the same handler to the same subscriber.
func (s *Subscription) Equal(other *Subscription) bool {
	return other != nil && s.key == other.key
}

// belongsTo reports whether the subscription is bound to r.
func (s *Subscription) belongsTo(r ref) bool { return s.key.ref == r }

// receiver returns the value the handler method is called on. ok is false
// when the subscriber was collected or an embedded pointer on the path to
// the declaring level is now nil.
func (s *Subscription) receiver() (reflect.Value, bool) {
	root, ok := deref(s.key.ref, s.elem)
	if !ok {
		return reflect.Value{}, false
	}
	return s.level.Receiver(root)
}

// call invokes the handler with arg on the live subscriber. delivered is
// false when there was no receiver to call.
func (s *Subscription) call(arg reflect.Value) (delivered bool, err error) {
	recv, ok := s.receiver()
	if !ok {
		return false, nil
	}
	return true, s.key.handler.Call(recv, arg)
}
