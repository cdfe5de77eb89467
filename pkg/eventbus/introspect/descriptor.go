package introspect

import (
	"go/token"
	"reflect"
)

var errorType = reflect.TypeFor[error]()

// Handlers marks a struct level as declaring handler methods. The
// subscribe tag on a Handlers field lists methods of the enclosing type
// and their delivery policies:
//
//	type Audit struct {
//	    _ introspect.Handlers `subscribe:"OnLogin=main,OnAny"`
//	    ...
//	}
//
// A level may carry several Handlers fields; their entries are combined.
type Handlers struct{}

// Descriptor is one validated handler declaration. Descriptors are
// immutable and shared by every subscription bound from them.
type Descriptor struct {
	// Level is the struct type that declares the handler.
	Level reflect.Type
	// EventType is the handler's parameter type.
	EventType reflect.Type
	// Method is the handler method on *Level.
	Method reflect.Method
	// Delivery is the declared policy.
	Delivery Delivery
	// ReturnsError is true when the method returns an error.
	ReturnsError bool
}

// NewDescriptor validates that *level has an exported method called name
// taking exactly one parameter and returning nothing or an error.
func NewDescriptor(level reflect.Type, name string, delivery Delivery) (*Descriptor, error) {
	fail := func(reason string) (*Descriptor, error) {
		return nil, &ConfigurationError{Type: level, Method: name, Reason: reason}
	}

	if !token.IsExported(name) {
		return fail("method is not exported")
	}
	m, ok := reflect.PointerTo(level).MethodByName(name)
	if !ok {
		return fail("no such method")
	}

	mt := m.Type // receiver is In(0)
	if mt.IsVariadic() {
		return fail("method is variadic")
	}
	if mt.NumIn() != 2 {
		return fail("method must take exactly one parameter")
	}

	returnsError := false
	switch mt.NumOut() {
	case 0:
	case 1:
		if mt.Out(0) != errorType {
			return fail("method may only return error")
		}
		returnsError = true
	default:
		return fail("method may only return error")
	}

	return &Descriptor{
		Level:        level,
		EventType:    mt.In(1),
		Method:       m,
		Delivery:     delivery,
		ReturnsError: returnsError,
	}, nil
}

// Name returns "Level.Method" for logs.
func (d *Descriptor) Name() string {
	return d.Level.String() + "." + d.Method.Name
}

// Call invokes the handler on recv, a pointer to a Level value, with arg.
// A non-nil returned error is passed through. Panics are not recovered.
func (d *Descriptor) Call(recv, arg reflect.Value) error {
	out := d.Method.Func.Call([]reflect.Value{recv, arg})
	if d.ReturnsError && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
