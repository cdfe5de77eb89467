// Package failure records handler invocations that panicked or returned
// an error.
//
// The bus never propagates handler failures to publishers. When a Store is
// configured, each failure becomes a Record that operators can inspect
// after the fact. Records describe the failure, not the event: event
// values are never persisted.
package failure

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
)

// Record describes one failed handler invocation.
type Record struct {
	ID         string
	Bus        string
	EventType  string
	Subscriber string
	Method     string
	Delivery   string
	Message    string
	Panicked   bool
	Stack      string
	OccurredAt time.Time
}

// Store persists failure records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores a record. An empty ID is replaced with a new UUID and a
	// zero OccurredAt with the current time.
	Save(rec Record) error

	// List returns up to limit records, newest first. limit <= 0 means all.
	List(limit int) ([]Record, error)

	// Count returns the number of stored records.
	Count() (int, error)

	// Delete removes a record. Returns nil if it doesn't exist.
	Delete(id string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for failure stores.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("failure store closed")

	// ErrUnknownDriver indicates Open was given an unsupported driver.
	ErrUnknownDriver = errors.New("unknown failure store driver")
)

// Open builds the store described by settings. The none driver (or an
// empty one) returns a nil Store and no error.
func Open(settings config.FailureSettings) (Store, error) {
	switch settings.Driver {
	case config.DriverNone, "":
		return nil, nil
	case config.DriverMemory:
		return NewMemoryStore(settings.Capacity), nil
	case config.DriverSQLite:
		store, err := NewSQLiteStore(settings.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, settings.Driver)
	}
}

func normalize(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	rec.OccurredAt = rec.OccurredAt.UTC()
	return rec
}
