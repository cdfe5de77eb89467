package eventbus

import (
	"reflect"
	"unsafe"
	"weak"
)

// ref is a non-owning handle on a subscriber. Two refs are equal iff they
// were made from the same subscriber pointer, and stay equal after the
// subscriber is collected, so they work as map keys for the subscriber's
// whole lifetime and are never confused with a later object at the same
// address.
type ref = weak.Pointer[byte]

// makeRef returns the ref of a non-nil pointer to a non-zero-size struct.
func makeRef(ptr reflect.Value) ref {
	return weak.Make((*byte)(ptr.UnsafePointer()))
}

// deref recovers a typed pointer to the subscriber, or reports that it was
// collected.
func deref(r ref, elem reflect.Type) (reflect.Value, bool) {
	p := r.Value()
	if p == nil {
		return reflect.Value{}, false
	}
	return reflect.NewAt(elem, unsafe.Pointer(p)), true
}
