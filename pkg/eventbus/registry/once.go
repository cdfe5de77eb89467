package registry

import "sync"

// OnceMap is a write-once cache: each key is computed at most once and
// the published value is never replaced. Lookups of published keys take
// no lock; only the populate-on-miss path is serialized, and it re-checks
// after acquiring the lock so concurrent first callers share one result.
//
// Values must be safe for concurrent reads once published.
type OnceMap[K comparable, V any] struct {
	mu      sync.Mutex
	entries sync.Map // K -> V
}

// NewOnceMap creates an empty OnceMap.
func NewOnceMap[K comparable, V any]() *OnceMap[K, V] {
	return &OnceMap[K, V]{}
}

// Load returns the published value for key.
func (m *OnceMap[K, V]) Load(key K) (V, bool) {
	v, ok := m.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// GetOrCreate returns the value for key, calling factory to build it on
// the first miss. factory runs with the miss lock held and is called at
// most once per key.
func (m *OnceMap[K, V]) GetOrCreate(key K, factory func() V) V {
	if v, ok := m.entries.Load(key); ok {
		return v.(V)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.entries.Load(key); ok {
		return v.(V)
	}
	v := factory()
	m.entries.Store(key, v)
	return v
}

// GetOrCreateErr is GetOrCreate for factories that can fail. A failed
// factory publishes nothing, so a later call retries.
func (m *OnceMap[K, V]) GetOrCreateErr(key K, factory func() (V, error)) (V, error) {
	if v, ok := m.entries.Load(key); ok {
		return v.(V), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.entries.Load(key); ok {
		return v.(V), nil
	}
	v, err := factory()
	if err != nil {
		var zero V
		return zero, err
	}
	m.entries.Store(key, v)
	return v, nil
}

// Range calls fn for each published entry. Entries published during the
// iteration may or may not be visited.
func (m *OnceMap[K, V]) Range(fn func(K, V) bool) {
	m.entries.Range(func(k, v any) bool {
		return fn(k.(K), v.(V))
	})
}

// Len counts published entries. It walks the map and is meant for tests
// and diagnostics.
func (m *OnceMap[K, V]) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
