package eventbus

// DeadEvent wraps an event no live handler matched. It is dispatched once
// in place of the original, with the same target; a DeadEvent nobody
// handles is dropped, never wrapped again.
//
//	type Monitor struct {
//	    _ eventbus.Handlers `subscribe:"OnDead=inline"`
//	    dropped int
//	}
//
//	func (m *Monitor) OnDead(e eventbus.DeadEvent) { m.dropped++ }
type DeadEvent struct {
	// Bus is the bus the event was published on.
	Bus *Bus
	// Event is the unmatched event.
	Event any
}
