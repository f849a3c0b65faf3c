// Package keylock provides mutual exclusion keyed by string.
// Operations on different keys never contend; entries are dropped
// once no goroutine holds or waits for them.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Set is a collection of per-key mutexes. The zero value is not usable.
type Set struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Set.
func New() *Set {
	return &Set{entries: make(map[string]*entry)}
}

// Lock blocks until key is held and returns the function that releases it.
func (s *Set) Lock(key string) (unlock func()) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
