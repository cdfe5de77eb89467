package hierarchy

import (
	"reflect"
	"strings"
)

// Entry is one type an event can be delivered as.
type Entry struct {
	// Type is the handler parameter type this entry matches.
	Type reflect.Type

	index []int
	addr  bool
}

// Project converts an event value into the value a handler of e.Type
// receives. The root entry and capabilities of the root return v
// unchanged. Embedded levels return the embedded field, or its address
// when the level was reached through a pointer. ok is false when the path
// crosses a nil embedded pointer.
func (e Entry) Project(v reflect.Value) (reflect.Value, bool) {
	if e.index == nil {
		return v, true
	}
	for _, i := range e.index {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		return v, true
	}
	if e.addr {
		return v.Addr(), true
	}
	return v, true
}

// Closure is the ordered, immutable set of types an event of one runtime
// type satisfies: the type itself, its embedded struct levels
// breadth-first, then each known capability it implements.
type Closure struct {
	root    reflect.Type
	entries []Entry
}

// Compute builds the closure of t against a capability index. Each
// capability is bound to the first entry, in closure order, that
// implements it.
func Compute(t reflect.Type, capabilities []reflect.Type) *Closure {
	levels := Levels(t)
	entries := make([]Entry, 0, len(levels)+len(capabilities))
	entries = append(entries, Entry{Type: t})
	for _, lvl := range levels[1:] {
		typ := lvl.Type
		if lvl.Indirect {
			typ = reflect.PointerTo(typ)
		}
		entries = append(entries, Entry{Type: typ, index: lvl.Index, addr: lvl.Indirect})
	}

	structural := len(entries)
	for _, iface := range capabilities {
		for _, e := range entries[:structural] {
			if e.Type.Implements(iface) {
				entries = append(entries, Entry{Type: iface, index: e.index, addr: e.addr})
				break
			}
		}
	}
	return &Closure{root: t, entries: entries}
}

// Type returns the runtime type the closure was computed for.
func (c *Closure) Type() reflect.Type {
	return c.root
}

// Len returns the number of entries.
func (c *Closure) Len() int {
	return len(c.entries)
}

// At returns the i-th entry.
func (c *Closure) At(i int) Entry {
	return c.entries[i]
}

// Types returns the entry types in closure order as a new slice.
func (c *Closure) Types() []reflect.Type {
	types := make([]reflect.Type, len(c.entries))
	for i, e := range c.entries {
		types[i] = e.Type
	}
	return types
}

// Contains reports whether t is one of the closure's entry types.
func (c *Closure) Contains(t reflect.Type) bool {
	for _, e := range c.entries {
		if e.Type == t {
			return true
		}
	}
	return false
}

// String renders the closure for logs, e.g. "*app.Login > app.UserEvent > fmt.Stringer".
func (c *Closure) String() string {
	var b strings.Builder
	for i, e := range c.entries {
		if i > 0 {
			b.WriteString(" > ")
		}
		b.WriteString(e.Type.String())
	}
	return b.String()
}
