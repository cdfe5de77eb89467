package loop

import "context"

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

var loopKey = key{}

// WithLoop returns a context carrying l. Jobs run by a Loop receive such a
// context, so code running on a loop can find it.
func WithLoop(ctx context.Context, l *Loop) context.Context {
	return context.WithValue(ctx, loopKey, l)
}

// FromContext returns the loop carried by ctx, if any.
func FromContext(ctx context.Context) (*Loop, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loopKey).(*Loop)
	return l, ok && l != nil
}
