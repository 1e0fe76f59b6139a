package store

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used by unit tests and local runs
// without Redis. Sets keep insertion order, so pool pops are FIFO.
type MemoryStore struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	sets    map[string][]string
	expires map[string]time.Time
}

type memoryEntry struct {
	value string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string]memoryEntry),
		sets:    make(map[string][]string),
		expires: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	entry, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memoryEntry{value: value}
	s.setTTLLocked(key, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = memoryEntry{value: value}
	s.setTTLLocked(key, ttl)
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.sets, key)
		delete(s.expires, key)
	}
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	if _, ok := s.values[key]; ok {
		return true, nil
	}
	_, ok := s.sets[key]
	return ok, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setTTLLocked(key, ttl)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	current := int64(0)
	if entry, ok := s.values[key]; ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current++
	s.values[key] = memoryEntry{value: strconv.FormatInt(current, 10)}
	return current, nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.sets[key]
	for _, member := range members {
		if !containsString(existing, member) {
			existing = append(existing, member)
		}
	}
	s.sets[key] = existing
	return nil
}

func (s *MemoryStore) SPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	members := s.sets[key]
	if len(members) == 0 {
		return "", false, nil
	}
	popped := members[0]
	s.sets[key] = members[1:]
	return popped, true, nil
}

func (s *MemoryStore) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked(key)
	return int64(len(s.sets[key])), nil
}

func (s *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.sets[key]
	kept := existing[:0]
	for _, member := range existing {
		if !containsString(members, member) {
			kept = append(kept, member)
		}
	}
	s.sets[key] = kept
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.values {
		s.reapLocked(key)
		if _, ok := s.values[key]; !ok {
			continue
		}
		if matched, _ := path.Match(pattern, key); matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *MemoryStore) setTTLLocked(key string, ttl time.Duration) {
	if ttl > 0 {
		s.expires[key] = time.Now().Add(ttl)
	} else {
		delete(s.expires, key)
	}
}

func (s *MemoryStore) reapLocked(key string) {
	deadline, ok := s.expires[key]
	if !ok || time.Now().Before(deadline) {
		return
	}
	delete(s.values, key)
	delete(s.sets, key)
	delete(s.expires, key)
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
