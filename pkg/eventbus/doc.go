/*
Package eventbus provides an in-process publish/subscribe event bus.

# Overview

Subscribers are plain structs whose handler methods are named in a
subscribe tag. Publishers post values; the bus delivers each value to
every handler whose parameter type the value satisfies, including the
structs it embeds and the interfaces it implements.

	type UserEvent struct{ UserID string }

	type Login struct {
	    UserEvent
	    Remote string
	}

	type Audit struct {
	    _ eventbus.Handlers `subscribe:"OnLogin=main,OnUser=background"`
	    entries []string
	}

	func (a *Audit) OnLogin(e *Login) { a.entries = append(a.entries, e.Remote) }
	func (a *Audit) OnUser(e *UserEvent) error { return nil }

	bus := eventbus.New()
	defer bus.Close(ctx)

	audit := &Audit{}
	if err := bus.Register(ctx, audit); err != nil {
	    log.Fatal(err)
	}
	_ = bus.Post(ctx, &Login{UserEvent: UserEvent{UserID: "u1"}})

A *Login reaches OnLogin and, through its embedded UserEvent, OnUser.

# Delivery

Every handler names where it runs:

  - inline: in the dispatching goroutine, before the next handler
  - main: serially on the bus main loop, in dispatch order
  - background: on the shared worker pool
  - default (no policy): on the loop the subscriber registered from,
    else the worker pool

A handler may return error. Returned errors and panics are logged,
recorded in the failure sink if one is set, and never reach the
publisher or other handlers.

# Publishing

Post, PostTo and their delayed forms queue the event on the dispatch
loop and return. Send and SendTo dispatch in the caller. SendSticky also
retains the value so subscribers registered later receive it. An event
nothing handles is wrapped in a DeadEvent and dispatched once more.

# Lifetime

The bus holds subscribers weakly. A subscriber that is no longer
referenced elsewhere stops receiving events once collected, and its
bindings are purged by Unregister(nil) or the periodic sweep configured
with WithSweepInterval.
*/
package eventbus
