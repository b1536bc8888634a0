package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore provides thread-safe in-memory counter storage
type MemoryStore struct {
	buckets sync.Map // map[string]*memoryEntry
}

type memoryEntry struct {
	mu       sync.Mutex
	counters Counters
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add increments the counters for bucket
func (s *MemoryStore) Add(_ context.Context, bucket string, delta Counters) error {
	val, _ := s.buckets.LoadOrStore(bucket, &memoryEntry{})
	entry := val.(*memoryEntry)

	entry.mu.Lock()
	entry.counters = entry.counters.Add(delta)
	entry.mu.Unlock()
	return nil
}

// Get retrieves the counters for bucket
func (s *MemoryStore) Get(_ context.Context, bucket string) (Counters, error) {
	val, ok := s.buckets.Load(bucket)
	if !ok {
		return Counters{}, nil
	}
	entry := val.(*memoryEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.counters, nil
}

// Buckets lists recorded buckets in name order
func (s *MemoryStore) Buckets(_ context.Context) ([]string, error) {
	var names []string
	s.buckets.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names, nil
}

// Delete removes the counters for bucket
func (s *MemoryStore) Delete(_ context.Context, bucket string) error {
	s.buckets.Delete(bucket)
	return nil
}

// Clear removes all counters
func (s *MemoryStore) Clear(_ context.Context) error {
	s.buckets.Range(func(key, _ any) bool {
		s.buckets.Delete(key)
		return true
	})
	return nil
}
