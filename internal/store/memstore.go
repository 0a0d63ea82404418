package store

import "sync"

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMem() *MemStore {
	return &MemStore{buckets: make(map[string]map[string][]byte)}
}

func (s *MemStore) Put(bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b[key] = cp
	return nil
}

func (s *MemStore) Get(bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStore) Delete(bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
	return nil
}

func (s *MemStore) List(bucket string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.buckets[bucket]))
	for k, v := range s.buckets[bucket] {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out, nil
}

func (s *MemStore) Close() error { return nil }
