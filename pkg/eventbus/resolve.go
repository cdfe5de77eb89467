package eventbus

import (
	"fmt"
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/hierarchy"
)

// subscriberValue validates a subscriber: a non-nil pointer to a struct
// with a non-zero size. Zero-size values share one address and cannot be
// told apart.
func subscriberValue(subscriber any) (reflect.Value, error) {
	if subscriber == nil {
		return reflect.Value{}, ErrNilSubscriber
	}
	v := reflect.ValueOf(subscriber)
	if v.Kind() != reflect.Pointer || v.Type().Elem().Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: got %s", ErrInvalidSubscriber, v.Type())
	}
	if v.IsNil() {
		return reflect.Value{}, ErrNilSubscriber
	}
	if v.Type().Elem().Size() == 0 {
		return reflect.Value{}, fmt.Errorf("%w: %s has zero size", ErrInvalidSubscriber, v.Type())
	}
	return v, nil
}

// subscriberRef validates subscriber and returns its ref.
func subscriberRef(subscriber any) (ref, error) {
	v, err := subscriberValue(subscriber)
	if err != nil {
		return ref{}, err
	}
	return makeRef(v), nil
}

// resolveAll binds every handler declared along the subscriber's
// embedding hierarchy to this instance and returns a fresh mapping. A bad
// declaration at any level fails the whole call. Levels behind a nil
// embedded pointer are scanned but not bound.
func (b *Bus) resolveAll(subscriber any) (ref, map[reflect.Type][]*Subscription, error) {
	ptr, err := subscriberValue(subscriber)
	if err != nil {
		return ref{}, nil, err
	}

	r := makeRef(ptr)
	elem := ptr.Type().Elem()
	bindings := make(map[reflect.Type][]*Subscription)
	var interfaces []reflect.Type

	for _, lvl := range hierarchy.Levels(ptr.Type()) {
		table, err := b.handlers.Table(lvl.Type)
		if err != nil {
			return ref{}, nil, err
		}
		if table.Len() == 0 {
			continue
		}
		if _, ok := lvl.Receiver(ptr); !ok {
			continue
		}
		for _, d := range table.All() {
			bindings[d.EventType] = append(bindings[d.EventType], newSubscription(r, elem, lvl, d))
			if d.EventType.Kind() == reflect.Interface {
				interfaces = append(interfaces, d.EventType)
			}
		}
	}

	for _, iface := range interfaces {
		b.closures.AddCapability(iface)
	}
	return r, bindings, nil
}
