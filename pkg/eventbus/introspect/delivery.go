package introspect

import (
	"errors"
	"fmt"
	"strings"
)

// Delivery selects the execution context a handler runs on.
type Delivery uint8

const (
	// Default runs the handler on the loop the subscriber registered from,
	// or on the worker pool when it registered from no loop.
	Default Delivery = iota

	// Inline runs the handler in the dispatching goroutine before dispatch
	// continues.
	Inline

	// Main posts the handler to the bus's main loop.
	Main

	// Background submits the handler to the worker pool.
	Background
)

// ErrUnknownDelivery is returned by ParseDelivery for an unrecognized token.
var ErrUnknownDelivery = errors.New("unknown delivery policy")

var deliveryTokens = map[string]Delivery{
	"default":    Default,
	"inline":     Inline,
	"dispatcher": Inline,
	"main":       Main,
	"ui":         Main,
	"background": Background,
	"pool":       Background,
}

// String returns the canonical tag token for d.
func (d Delivery) String() string {
	switch d {
	case Default:
		return "default"
	case Inline:
		return "inline"
	case Main:
		return "main"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("delivery(%d)", uint8(d))
	}
}

// ParseDelivery parses a tag token. Matching is case-insensitive; the
// empty string is Default.
func ParseDelivery(token string) (Delivery, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return Default, nil
	}
	d, ok := deliveryTokens[token]
	if !ok {
		return Default, fmt.Errorf("%w: %q", ErrUnknownDelivery, token)
	}
	return d, nil
}
