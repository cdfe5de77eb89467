package eventbus

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/eventbus/pkg/eventbus/loop"
	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
)

// subscriptionSet is the copy-on-write binding set of one event type.
// Readers take the current snapshot without locking; writers serialize on
// mu and publish a new slice.
type subscriptionSet struct {
	mu   sync.Mutex
	snap atomic.Pointer[[]*Subscription]
}

func newSubscriptionSet() *subscriptionSet {
	s := &subscriptionSet{}
	s.snap.Store(&[]*Subscription{})
	return s
}

func (s *subscriptionSet) snapshot() []*Subscription {
	return *s.snap.Load()
}

// add inserts sub unless an equal subscription is present.
func (s *subscriptionSet) add(sub *Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.snap.Load()
	for _, existing := range cur {
		if existing.Equal(sub) {
			return false
		}
	}
	next := make([]*Subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, sub)
	s.snap.Store(&next)
	return true
}

// removeFunc drops every subscription matching and returns how many.
func (s *subscriptionSet) removeFunc(match func(*Subscription) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.snap.Load()
	if !slices.ContainsFunc(cur, match) {
		return 0
	}
	next := make([]*Subscription, 0, len(cur))
	for _, sub := range cur {
		if !match(sub) {
			next = append(next, sub)
		}
	}
	s.snap.Store(&next)
	return len(cur) - len(next)
}

// subscriptionRegistry tracks bindings per event type and each
// subscriber's default loop.
type subscriptionRegistry struct {
	byType   *registry.OnceMap[reflect.Type, *subscriptionSet]
	defaults *registry.Registry[ref, *loop.Loop]
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		byType:   registry.NewOnceMap[reflect.Type, *subscriptionSet](),
		defaults: registry.New[ref, *loop.Loop](),
	}
}

// add inserts every binding and returns how many were new.
func (r *subscriptionRegistry) add(bindings map[reflect.Type][]*Subscription) int {
	added := 0
	for eventType, subs := range bindings {
		set := r.byType.GetOrCreate(eventType, newSubscriptionSet)
		for _, sub := range subs {
			if set.add(sub) {
				added++
			}
		}
	}
	return added
}

// remove drops bindings of collected subscribers, plus those of target
// when hasTarget is set, and clears the matching default loops.
func (r *subscriptionRegistry) remove(target ref, hasTarget bool) int {
	removed := 0
	r.byType.Range(func(_ reflect.Type, set *subscriptionSet) bool {
		removed += set.removeFunc(func(sub *Subscription) bool {
			return (hasTarget && sub.belongsTo(target)) || !sub.Live()
		})
		return true
	})
	r.defaults.DeleteFunc(func(k ref, _ *loop.Loop) bool {
		return (hasTarget && k == target) || k.Value() == nil
	})
	return removed
}

// assignDefault records the loop ctx runs on as the default for target,
// or clears the default when ctx carries no loop.
func (r *subscriptionRegistry) assignDefault(ctx context.Context, target ref) {
	if l, ok := loop.FromContext(ctx); ok {
		r.defaults.Store(target, l)
		return
	}
	r.defaults.Delete(target)
}

func (r *subscriptionRegistry) defaultLoop(target ref) (*loop.Loop, bool) {
	return r.defaults.Load(target)
}

// subscriptions returns the current bindings for exactly eventType.
func (r *subscriptionRegistry) subscriptions(eventType reflect.Type) []*Subscription {
	set, ok := r.byType.Load(eventType)
	if !ok {
		return nil
	}
	return set.snapshot()
}

// count returns the number of bindings across all event types.
func (r *subscriptionRegistry) count() int {
	n := 0
	r.byType.Range(func(_ reflect.Type, set *subscriptionSet) bool {
		n += len(set.snapshot())
		return true
	})
	return n
}
