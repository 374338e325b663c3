package cache

import (
	"context"
	"sync"
	"time"
)

// memoryStore is a map-backed Store that records calls and can be told to fail.
type memoryStore struct {
	mu       sync.Mutex
	entries  map[string][]byte
	ttls     map[string]time.Duration
	getErr   error
	setErr   error
	getCalls int
	setCalls int
	deleted  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	value, ok := s.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
