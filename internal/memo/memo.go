// Package memo provides a concurrent per-key memoization map. Each key is
// computed at most once; callers for different keys never wait on each other.
package memo

import "sync"

type entry[V any] struct {
	once sync.Once
	val  V
	err  error
}

// Map memoizes a function of K. The zero value is ready to use.
type Map[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// Get returns the memoized result for key, calling compute on first use.
// Concurrent callers for the same key block until the first call returns.
// Errors are memoized too.
func (m *Map[K, V]) Get(key K, compute func() (V, error)) (V, error) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[K]*entry[V])
	}
	e, ok := m.entries[key]
	if !ok {
		e = &entry[V]{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.val, e.err = compute()
	})
	return e.val, e.err
}

// Len returns the number of keys seen.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
