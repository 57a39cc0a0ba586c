package consensus

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Store is a concurrent, insertion-ordered, capacity-bounded key→value
// mapping (C1). Eviction is strict FIFO by insertion order: a lookup never
// changes an entry's eviction priority, which is why Store drives the
// underlying LRU exclusively through Add/Peek/Remove/Contains and never
// calls its Get (which would promote the entry and turn FIFO into LRU).
//
// In-place updates (Update/UpdateOrInsert) cannot go through Add either:
// golang-lru/v2's Add always moves the touched key to the most-recently-used
// end of the internal list, which would let a merely-updated entry jump
// ahead of genuinely newer insertions in both eviction order and GetLastN.
// Store instead holds *V behind each key: Add is called exactly once, at a
// key's first insertion (to establish its FIFO position and capacity
// accounting), and every later Put/Update/UpdateOrInsert on an existing key
// mutates the pointee in place through Peek, touching the value without
// ever asking the LRU to reposition it.
//
// Every individual operation is safe for concurrent use. Composite
// operations (read-modify-write across calls) are the caller's
// responsibility to serialize — see the named lock registry in locks.go.
type Store[V any] struct {
	mu  sync.RWMutex
	lru *simplelru.LRU[string, *V]

	// OnEvict, if set, is called synchronously whenever capacity eviction
	// removes an entry. It exists purely for metrics; it must not block.
	OnEvict func(key string, value V)
}

// NewStore builds a Store bounded to capacity entries. capacity must be > 0.
func NewStore[V any](capacity int) *Store[V] {
	s := &Store[V]{}
	c, err := simplelru.NewLRU(capacity, func(key string, value *V) {
		if s.OnEvict != nil {
			s.OnEvict(key, *value)
		}
	})
	if err != nil {
		// capacity <= 0 is a construction-time programmer error.
		panic(err)
	}
	s.lru = c
	return s
}

// Put inserts key with value, or overwrites an existing key's value in
// place without disturbing its FIFO position.
func (s *Store[V]) Put(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.lru.Peek(key); ok {
		*cur = value
		return
	}
	v := value
	s.lru.Add(key, &v)
}

// Lookup returns the value for key and whether it was present.
func (s *Store[V]) Lookup(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.lru.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	return *cur, true
}

// Update applies fn to the current value of key, if present, and stores the
// result in place (FIFO position unchanged). It returns the updated value
// and true, or the zero value and false if key was absent.
func (s *Store[V]) Update(key string, fn func(V) V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.lru.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	next := fn(*cur)
	*cur = next
	return next, true
}

// UpdateOrInsert applies fn to the current value of key if present, else
// inserts empty and applies fn to that, matching C1's
// "update(k, fn, empty)" operation. An existing key's FIFO position is
// left untouched; only a brand-new key establishes a new position.
func (s *Store[V]) UpdateOrInsert(key string, fn func(V) V, empty V) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.lru.Peek(key)
	if !ok {
		v := empty
		cur = &v
		s.lru.Add(key, cur)
	}
	next := fn(*cur)
	*cur = next
	return next
}

// Remove deletes key, if present. It is a no-op otherwise (idempotent).
func (s *Store[V]) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}

// Contains reports whether key is present, without affecting eviction order.
func (s *Store[V]) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Contains(key)
}

// Size returns the current number of entries.
func (s *Store[V]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lru.Len()
}

// GetLastN returns up to the n most recently inserted values, oldest first
// within the returned slice (matching getLast20Accepted's "newest 20 by
// insertion order" semantics: the slice itself preserves chronological
// order, it is simply truncated to the newest n).
func (s *Store[V]) GetLastN(n int) []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.lru.Keys() // oldest -> newest, since we never call Get
	if n > len(keys) {
		n = len(keys)
	}
	start := len(keys) - n
	out := make([]V, 0, n)
	for _, k := range keys[start:] {
		if v, ok := s.lru.Peek(k); ok {
			out = append(out, *v)
		}
	}
	return out
}

// Snapshot returns a consistent point-in-time copy of every key/value pair,
// so a caller can iterate without holding a substore lock.
func (s *Store[V]) Snapshot() map[string]V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]V, s.lru.Len())
	for _, k := range s.lru.Keys() {
		if v, ok := s.lru.Peek(k); ok {
			out[k] = *v
		}
	}
	return out
}
