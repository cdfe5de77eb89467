package introspect

import (
	"reflect"
	"slices"
)

// Table is the handler map of one struct level: event type to the
// descriptors that accept it. Several handlers at one level may accept the
// same event type; callers must not rely on their relative order.
type Table struct {
	level   reflect.Type
	byEvent map[reflect.Type][]*Descriptor
	events  []reflect.Type
	all     []*Descriptor
}

// NewTable groups descriptors by event type. Every descriptor's Level
// should be level.
func NewTable(level reflect.Type, descriptors []*Descriptor) *Table {
	t := &Table{
		level:   level,
		byEvent: make(map[reflect.Type][]*Descriptor, len(descriptors)),
		all:     slices.Clone(descriptors),
	}
	for _, d := range descriptors {
		if _, ok := t.byEvent[d.EventType]; !ok {
			t.events = append(t.events, d.EventType)
		}
		t.byEvent[d.EventType] = append(t.byEvent[d.EventType], d)
	}
	return t
}

// Level returns the struct type the table describes.
func (t *Table) Level() reflect.Type { return t.level }

// Handlers returns the descriptors accepting eventType.
func (t *Table) Handlers(eventType reflect.Type) []*Descriptor {
	return t.byEvent[eventType]
}

// EventTypes returns the distinct accepted event types in first-seen order.
func (t *Table) EventTypes() []reflect.Type {
	return slices.Clone(t.events)
}

// All returns every descriptor in declaration order.
func (t *Table) All() []*Descriptor {
	return slices.Clone(t.all)
}

// Len returns the number of descriptors.
func (t *Table) Len() int { return len(t.all) }
