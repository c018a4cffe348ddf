// Package memory provides an in-process kv.Store used when history is not durable.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// KVStore implements kv.Store in memory.
type KVStore struct {
	mu      sync.RWMutex
	entries map[string]kv.Entry
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore creates an empty store.
func NewKVStore() *KVStore {
	return &KVStore{entries: make(map[string]kv.Entry)}
}

func (s *KVStore) Get(_ context.Context, key string) (kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	return entry, nil
}

func (s *KVStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok {
		entry = kv.Entry{Key: key, CreatedAt: now}
	}
	entry.Value = value
	entry.UpdatedAt = now
	s.entries[key] = entry
	return nil
}

func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; !ok {
		return kv.ErrKeyNotFound
	}
	delete(s.entries, key)
	return nil
}

func (s *KVStore) List(_ context.Context, prefix string) ([]kv.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []kv.Entry
	for key, entry := range s.entries {
		if strings.HasPrefix(key, prefix) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
