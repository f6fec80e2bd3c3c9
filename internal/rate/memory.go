package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store. Suitable for tests and one-instance
// deployments; counters are lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{hits: make(map[string][]time.Time)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.hits[key][:0]
	for _, at := range s.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	s.hits[key] = kept

	return int64(len(kept)), nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.hits, key)
	s.mu.Unlock()
	return nil
}
