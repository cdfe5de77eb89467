package eventbus

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/eventbus/pkg/eventbus/introspect"
)

// Sentinel errors for usage mistakes. They are returned immediately and
// nothing is queued or registered.
var (
	// ErrNilEvent indicates a publish call was given a nil event, or a
	// typed nil pointer.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrNilSubscriber indicates Register or a targeted publish was given
	// a nil subscriber.
	ErrNilSubscriber = errors.New("subscriber cannot be nil")

	// ErrInvalidSubscriber indicates a subscriber that is not a pointer to
	// a struct with a non-zero size.
	ErrInvalidSubscriber = errors.New("subscriber must be a non-nil pointer to a non-empty struct")

	// ErrBusClosed indicates the bus has been closed.
	ErrBusClosed = errors.New("bus closed")
)

// ConfigurationError reports a handler declaration that cannot be bound.
// Register returns it before creating any subscription.
type ConfigurationError = introspect.ConfigurationError

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	// Value is what the handler panicked with.
	Value any
	// Stack is the goroutine stack at the point of recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns Value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// InvocationError reports a handler that panicked or returned an error.
// It never reaches publishers; it goes to the bus logger, failure store
// and metrics.
type InvocationError struct {
	// Handler is the failing method, e.g. "app.Audit.OnLogin".
	Handler string
	// Subscriber is the subscriber's type.
	Subscriber string
	// EventType is the type of the value the handler received.
	EventType string
	// Delivery is the policy the handler ran under.
	Delivery introspect.Delivery
	// Err is the returned error or a *PanicError.
	Err error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("handler %s (%s delivery) failed on %s: %v", e.Handler, e.Delivery, e.EventType, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the handler panicked rather than returned an error.
func (e *InvocationError) Panicked() bool {
	var p *PanicError
	return errors.As(e.Err, &p)
}
