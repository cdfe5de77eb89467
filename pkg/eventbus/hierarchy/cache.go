package hierarchy

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// Cache memoizes closures per runtime type.
//
// Go cannot enumerate the interfaces a type implements, so the cache
// keeps a capability index: the interface types handlers have declared
// they accept (see AddCapability). Closures are computed against the
// index current at first observation. Growing the index publishes a new
// generation whose closures are recomputed lazily; closures already
// handed out are never mutated.
type Cache struct {
	mu  sync.Mutex // serializes AddCapability
	gen atomic.Pointer[generation]
}

type generation struct {
	capabilities []reflect.Type
	known        map[reflect.Type]struct{}
	closures     *registry.OnceMap[reflect.Type, *Closure]
}

func newGeneration(capabilities []reflect.Type) *generation {
	known := make(map[reflect.Type]struct{}, len(capabilities))
	for _, c := range capabilities {
		known[c] = struct{}{}
	}
	return &generation{
		capabilities: capabilities,
		known:        known,
		closures:     registry.NewOnceMap[reflect.Type, *Closure](),
	}
}

// NewCache creates an empty cache with an empty capability index.
func NewCache() *Cache {
	c := &Cache{}
	c.gen.Store(newGeneration(nil))
	return c
}

// Of returns the closure for event's runtime type. The first call for a
// type computes it exactly once, even under concurrent callers; later
// calls return the identical *Closure without locking until the
// capability index grows.
func (c *Cache) Of(event any) *Closure {
	return c.OfType(reflect.TypeOf(event))
}

// OfType is Of keyed by type.
func (c *Cache) OfType(t reflect.Type) *Closure {
	g := c.gen.Load()
	return g.closures.GetOrCreate(t, func() *Closure {
		return Compute(t, g.capabilities)
	})
}

// AddCapability adds an interface type to the capability index and
// reports whether it was new. Non-interface types are ignored. Adding a
// known interface does not lock.
func (c *Cache) AddCapability(iface reflect.Type) bool {
	if iface == nil || iface.Kind() != reflect.Interface {
		return false
	}
	if _, ok := c.gen.Load().known[iface]; ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g := c.gen.Load()
	if _, ok := g.known[iface]; ok {
		return false
	}
	next := append(slices.Clone(g.capabilities), iface)
	c.gen.Store(newGeneration(next))
	return true
}

// Capabilities returns a copy of the capability index in insertion order.
func (c *Cache) Capabilities() []reflect.Type {
	return slices.Clone(c.gen.Load().capabilities)
}

// Len returns the number of closures cached in the current generation.
func (c *Cache) Len() int {
	return c.gen.Load().closures.Len()
}
