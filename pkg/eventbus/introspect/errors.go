package introspect

import (
	"fmt"
	"reflect"
)

// ConfigurationError reports a handler declaration that cannot be bound.
// It is returned at scan time, before any subscription is created.
type ConfigurationError struct {
	// Type is the struct type carrying the declaration.
	Type reflect.Type
	// Method is the declared method name, empty for tag-level problems.
	Method string
	// Reason describes what is wrong.
	Reason string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	where := typeName(e.Type)
	if e.Method != "" {
		where += "." + e.Method
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid handler %s: %s: %v", where, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid handler %s: %s", where, e.Reason)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
