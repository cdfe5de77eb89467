// Package registry provides the two concurrent maps the event bus is
// built on.
//
// # Registry
//
// Registry is a mutable map behind a sync.RWMutex, for slots that are
// overwritten or cleared at runtime:
//
//	sticky := registry.New[reflect.Type, any]()
//	sticky.Store(reflect.TypeOf(evt), evt) // replaces the previous value
//	sticky.Delete(reflect.TypeOf(evt))
//
// # OnceMap
//
// OnceMap is a compute-once cache. The first caller for a key builds the
// value under a mutex; everyone after reads it without locking:
//
//	tables := registry.NewOnceMap[reflect.Type, *Table]()
//	table, err := tables.GetOrCreateErr(t, func() (*Table, error) {
//	    return scan(t)
//	})
//
// The factory is called at most once per key, even under concurrent
// access. A factory error publishes nothing.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Registry.Range iterates over a
// snapshot, so the callback may mutate the registry.
package registry
