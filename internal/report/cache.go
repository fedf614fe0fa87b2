package report

import (
	"github.com/dgraph-io/ristretto/v2"
)

// CachedStore keeps recently used reports in memory and delegates to a
// backing Store on miss.
type CachedStore struct {
	cache *ristretto.Cache[string, *Report]
	back  Store
}

// NewCachedStore creates a cache holding up to capacity reports in front
// of back. Capacity must be >= 1.
func NewCachedStore(capacity int, back Store) (*CachedStore, error) {
	if capacity < 1 {
		capacity = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *Report]{
		NumCounters:        int64(capacity) * 10,
		MaxCost:            int64(capacity),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &CachedStore{cache: c, back: back}, nil
}

// Save writes the report to the backing store and caches it.
func (s *CachedStore) Save(r *Report) error {
	if err := s.back.Save(r); err != nil {
		return err
	}
	s.cache.Set(r.ID, r, 1)
	s.cache.Wait()
	return nil
}

// Load checks the cache first. On miss, loads from the backing store
// and promotes the report into the cache.
func (s *CachedStore) Load(id string) (*Report, error) {
	if r, ok := s.cache.Get(id); ok {
		return r, nil
	}
	r, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, r, 1)
	s.cache.Wait()
	return r, nil
}

// Close releases the cache.
func (s *CachedStore) Close() {
	s.cache.Close()
}
