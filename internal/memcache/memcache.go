// Package memcache is the process-local TTL cache used for short-lived derived views
// and for collapsing identical upstream requests.
package memcache

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultMaxItems bounds the store when no limit is configured.
const DefaultMaxItems = 10_000

// Stats is a point-in-time view of the store.
type Stats struct {
	Size         int     `json:"size"`
	ValidCount   int     `json:"validCount"`
	ExpiredCount int     `json:"expiredCount"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	HitRatio     float64 `json:"hitRatio"`
}

// Store is a TTL cache with lazy expiry on read, an externally driven sweep, and
// insertion-order eviction once MaxItems is exceeded.
type Store struct {
	mu       sync.Mutex
	items    *gocache.Cache
	created  map[string]time.Time
	maxItems int
	hits     uint64
	misses   uint64
}

// New creates a Store holding at most maxItems entries. A non-positive maxItems
// selects DefaultMaxItems.
func New(maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Store{
		// The janitor is disabled; Sweep is called by the owner's worker.
		items:    gocache.New(gocache.NoExpiration, 0),
		created:  make(map[string]time.Time),
		maxItems: maxItems,
	}
}

// Get returns the value for key. Expired entries are removed and reported as a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.lookup(key)
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return v, ok
}

// Has reports whether a live entry exists for key without touching hit statistics.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key)
	return ok
}

// lookup must be called with mu held.
func (s *Store) lookup(key string) (any, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		if _, tracked := s.created[key]; tracked {
			s.items.Delete(key)
			delete(s.created, key)
		}
		return nil, false
	}
	return v, true
}

// Set stores value under key. A non-positive ttl means the entry never expires.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Set(key, value, ttl)
	s.created[key] = time.Now()

	if len(s.created) > s.maxItems {
		s.evictOldest()
	}
}

// evictOldest drops the oldest-created tenth of the entries, at least one.
// Must be called with mu held.
func (s *Store) evictOldest() {
	keys := make([]string, 0, len(s.created))
	for k := range s.created {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return s.created[a].Compare(s.created[b])
	})

	n := max(1, len(keys)/10)
	for _, k := range keys[:n] {
		s.items.Delete(k)
		delete(s.created, k)
	}
	slog.Debug("memory cache over capacity, evicted oldest entries", "evicted", n, "max", s.maxItems)
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Delete(key)
	delete(s.created, key)
}

// Clear removes every entry and resets hit statistics.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Flush()
	s.created = make(map[string]time.Time)
	s.hits, s.misses = 0, 0
}

// Sweep removes all expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.DeleteExpired()
	live := s.items.Items()

	removed := 0
	for k := range s.created {
		if _, ok := live[k]; !ok {
			delete(s.created, k)
			removed++
		}
	}
	return removed
}

// Stats reports size and hit statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.items.ItemCount()
	valid := len(s.items.Items())
	st := Stats{
		Size:         size,
		ValidCount:   valid,
		ExpiredCount: size - valid,
		Hits:         s.hits,
		Misses:       s.misses,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRatio = float64(s.hits) / float64(total)
	}
	return st
}
