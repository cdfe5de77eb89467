package eventbus

import (
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// stickyStore keeps the last sticky value per runtime type.
type stickyStore struct {
	values *registry.Registry[reflect.Type, any]
}

func newStickyStore() *stickyStore {
	return &stickyStore{values: registry.New[reflect.Type, any]()}
}

func (s *stickyStore) put(event any) {
	s.values.Store(reflect.TypeOf(event), event)
}

func (s *stickyStore) remove(t reflect.Type) bool {
	return s.values.Delete(t)
}

func (s *stickyStore) get(t reflect.Type) (any, bool) {
	return s.values.Load(t)
}

// snapshot returns the retained values in no particular order.
func (s *stickyStore) snapshot() []any {
	out := make([]any, 0, s.values.Len())
	s.values.Range(func(_ reflect.Type, v any) bool {
		out = append(out, v)
		return true
	})
	return out
}
