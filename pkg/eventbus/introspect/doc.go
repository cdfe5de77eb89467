// Package introspect discovers handler methods on subscriber types.
//
// A struct declares handlers for its own level with a Handlers field and
// a subscribe tag naming methods on its pointer method set:
//
//	type Audit struct {
//	    _ introspect.Handlers `subscribe:"OnLogin=main,OnTick=background,OnAny"`
//	    log []string
//	}
//
//	func (a *Audit) OnLogin(e *Login)   { ... }
//	func (a *Audit) OnTick(t Tick) error { ... }
//	func (a *Audit) OnAny(e any)        { ... }
//
// A handler takes exactly one parameter, its event type, and returns
// nothing or an error. Policy tokens are default, inline, main and
// background, with the aliases dispatcher (inline), ui (main) and pool
// (background). A missing policy means default.
//
// Malformed declarations fail the scan with a *ConfigurationError. Cache
// keeps one Table per level and never caches failures.
package introspect
