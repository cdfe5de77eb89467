// Package hierarchy resolves the set of types an event value can be
// delivered as.
//
// Go has no class inheritance. An event's "supertypes" are the structs
// it embeds, and its capabilities are the interfaces it implements:
//
//	type UserEvent struct{ UserID string }
//	type Login struct {
//	    UserEvent
//	    At time.Time
//	}
//
//	cache := hierarchy.NewCache()
//	cache.AddCapability(reflect.TypeFor[fmt.Stringer]())
//	closure := cache.Of(&Login{})
//	// *Login > *UserEvent > fmt.Stringer (if *Login implements it)
//
// A pointer event yields pointer supertypes (the address of the embedded
// field); a value event yields value supertypes. Entry.Project performs
// that conversion at delivery time.
//
// Closures are computed once per runtime type and shared read-only
// across goroutines.
package hierarchy
