// Package l1 provides the in-process cache of decoded stats records, a
// size-bounded LRU with a uniform TTL.
package l1

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Options configures an L1 Store.
type Options[V any] struct {
	// MaxEntries bounds the cache; zero means unbounded.
	MaxEntries int
	// TTL expires entries after insertion; zero disables expiry.
	TTL     time.Duration
	OnEvict func(key string, value V)
}

// Store is the in-memory tier.
type Store[V any] struct {
	lru    *expirable.LRU[string, V]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new L1 Store.
func New[V any](opts Options[V]) *Store[V] {
	var onEvict expirable.EvictCallback[string, V]
	if opts.OnEvict != nil {
		onEvict = func(k string, v V) { opts.OnEvict(k, v) }
	}
	return &Store[V]{lru: expirable.NewLRU[string, V](opts.MaxEntries, onEvict, opts.TTL)}
}

// Set stores value under key, replacing any previous entry.
func (s *Store[V]) Set(key string, value V) {
	s.lru.Add(key, value)
}

// Get retrieves a value by key.
func (s *Store[V]) Get(key string) (V, bool) {
	v, ok := s.lru.Get(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Delete removes a key from the cache.
func (s *Store[V]) Delete(key string) {
	s.lru.Remove(key)
}

// Flush removes every entry.
func (s *Store[V]) Flush() {
	s.lru.Purge()
}

// Stats holds hit/miss/entry counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

// Stats returns current statistics.
func (s *Store[V]) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: int64(s.lru.Len())}
}
