package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStoreAndLoad(t *testing.T) {
	r := New[string, int]()

	r.Store("one", 1)
	r.Store("two", 2)

	v, ok := r.Load("one")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Load("three")
	assert.False(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 2, r.Len())
}

func TestRegistryStoreReplaces(t *testing.T) {
	r := New[string, string]()

	r.Store("key", "old")
	r.Store("key", "new")

	v, ok := r.Load("key")
	require.True(t, ok)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDelete(t *testing.T) {
	r := New[string, int]()
	r.Store("key", 42)

	assert.True(t, r.Delete("key"))
	assert.False(t, r.Delete("key"))

	_, ok := r.Load("key")
	assert.False(t, ok)
}

func TestRegistryDeleteFunc(t *testing.T) {
	r := New[int, int]()
	for i := range 10 {
		r.Store(i, i)
	}

	removed := r.DeleteFunc(func(k, _ int) bool { return k%2 == 0 })

	assert.Equal(t, 5, removed)
	assert.Equal(t, 5, r.Len())
	_, ok := r.Load(4)
	assert.False(t, ok)
	_, ok = r.Load(5)
	assert.True(t, ok)
}

func TestRegistryRangeAllowsMutation(t *testing.T) {
	r := New[string, int]()
	r.Store("a", 1)
	r.Store("b", -1)
	r.Store("c", 3)

	visited := 0
	r.Range(func(k string, v int) bool {
		visited++
		if v < 0 {
			r.Delete(k)
		}
		r.Store("added-"+k, v)
		return true
	})

	assert.Equal(t, 3, visited)
	_, ok := r.Load("b")
	assert.False(t, ok)
	assert.Equal(t, 5, r.Len())
}

func TestRegistryRangeEarlyStop(t *testing.T) {
	r := New[int, int]()
	for i := range 5 {
		r.Store(i, i)
	}

	visited := 0
	r.Range(func(_, _ int) bool {
		visited++
		return visited < 2
	})

	assert.Equal(t, 2, visited)
}

func TestRegistryConcurrentReadWrite(t *testing.T) {
	r := New[int, int]()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(2)
		go func(k int) {
			defer wg.Done()
			r.Store(k, k*2)
		}(i)
		go func(k int) {
			defer wg.Done()
			r.Load(k)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}

func TestOnceMapGetOrCreate(t *testing.T) {
	m := NewOnceMap[string, *int]()
	calls := 0

	first := m.GetOrCreate("key", func() *int {
		calls++
		v := 42
		return &v
	})
	second := m.GetOrCreate("key", func() *int {
		calls++
		v := 7
		return &v
	})

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Len())
}

func TestOnceMapGetOrCreateErrDoesNotPublishFailure(t *testing.T) {
	m := NewOnceMap[string, int]()
	boom := errors.New("boom")

	_, err := m.GetOrCreateErr("key", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	_, ok := m.Load("key")
	assert.False(t, ok, "failed factory must not publish a value")

	v, err := m.GetOrCreateErr("key", func() (int, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestOnceMapConcurrentGetOrCreate(t *testing.T) {
	m := NewOnceMap[string, *int]()
	var calls atomic.Int32
	var wg sync.WaitGroup

	results := make([]*int, 100)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.GetOrCreate("key", func() *int {
				calls.Add(1)
				v := 1
				return &v
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestOnceMapRange(t *testing.T) {
	m := NewOnceMap[int, int]()
	for i := range 4 {
		m.GetOrCreate(i, func() int { return i * 10 })
	}

	sum := 0
	m.Range(func(_, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 60, sum)
}
