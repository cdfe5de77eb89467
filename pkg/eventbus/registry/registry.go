package registry

import "sync"

// Registry is a mutable, thread-safe map guarded by a sync.RWMutex.
// The bus uses it for state that is overwritten in place: sticky values
// and per-subscriber default loops.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Store sets the value for key, replacing any previous value.
func (r *Registry[K, V]) Store(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
}

// Load returns the value for key and whether it exists.
func (r *Registry[K, V]) Load(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Delete removes key. It reports whether the key was present.
func (r *Registry[K, V]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// DeleteFunc removes every entry for which match returns true and
// returns how many entries were removed. match runs under the write lock
// and must not call back into the registry.
func (r *Registry[K, V]) DeleteFunc(match func(K, V) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, v := range r.entries {
		if match(k, v) {
			delete(r.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry of a snapshot taken under the read lock.
// fn may mutate the registry; the mutation is not observed by the current
// iteration. Iteration stops when fn returns false.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	snapshot := make(map[K]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}
