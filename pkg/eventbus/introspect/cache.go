package introspect

import (
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// Cache memoizes scanner output per struct level. A level is scanned at
// most once in its successful lifetime; a failed scan is not cached, so a
// later lookup scans again and fails the same way.
type Cache struct {
	scanner Scanner
	tables  *registry.OnceMap[reflect.Type, *Table]
}

// NewCache creates a cache over scanner. A nil scanner means TagScanner.
func NewCache(scanner Scanner) *Cache {
	if scanner == nil {
		scanner = TagScanner{}
	}
	return &Cache{
		scanner: scanner,
		tables:  registry.NewOnceMap[reflect.Type, *Table](),
	}
}

// Table returns the handler table for level.
func (c *Cache) Table(level reflect.Type) (*Table, error) {
	return c.tables.GetOrCreateErr(level, func() (*Table, error) {
		return c.scanner.Scan(level)
	})
}

// Len returns the number of cached tables.
func (c *Cache) Len() int {
	return c.tables.Len()
}
