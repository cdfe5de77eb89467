package failure

import (
	"sync"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
)

// MemoryStore keeps the most recent records in a fixed-size ring.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	ring   []Record
	next   int // slot the next Save writes
	size   int
	closed bool
}

// NewMemoryStore creates a ring of capacity records. Capacity below 1
// uses config.DefaultFailureCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = config.DefaultFailureCapacity
	}
	return &MemoryStore{ring: make([]Record, capacity)}
}

// Save implements Store. When full, the oldest record is overwritten.
func (m *MemoryStore) Save(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.ring[m.next] = normalize(rec)
	m.next = (m.next + 1) % len(m.ring)
	if m.size < len(m.ring) {
		m.size++
	}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	n := m.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out, nil
}

// Count implements Store.
func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return m.size, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Rebuild oldest-first without the record, then lay it back into the ring.
	kept := make([]Record, 0, m.size)
	for i := m.size; i >= 1; i-- {
		rec := m.ring[(m.next-i+len(m.ring))%len(m.ring)]
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == m.size {
		return nil
	}

	clear(m.ring)
	copy(m.ring, kept)
	m.size = len(kept)
	m.next = m.size % len(m.ring)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.ring = make([]Record, len(m.ring))
	m.size = 0
	m.next = 0
	return nil
}
