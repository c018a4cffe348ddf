// Package jsonfile provides a JSON file-backed record store for widget persistence.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// KVFile is the root JSON structure stored on disk.
type KVFile struct {
	Entries map[string]kv.Entry `json:"entries"`
}

// KVStore implements kv.Store using a single JSON file. Access is serialized
// in-process with a RWMutex and across processes with flock on a sidecar file.
type KVStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore creates a new JSON file store at the given path.
func NewKVStore(path string) *KVStore {
	return &KVStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *KVStore) Path() string {
	return s.path
}

func (s *KVStore) lockPath() string {
	return s.path + ".lock"
}

// withFileLock acquires a file lock, executes fn, then releases the lock.
func (s *KVStore) withFileLock(lockType int, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := syscall.Flock(int(f.Fd()), lockType); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	return fn()
}

// view runs fn against a snapshot of the file under a shared lock.
func (s *KVStore) view(fn func(KVFile)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.withFileLock(syscall.LOCK_SH, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}
		fn(file)
		return nil
	})
}

// mutate runs fn under an exclusive lock and saves the file when fn reports a change.
func (s *KVStore) mutate(fn func(KVFile) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(syscall.LOCK_EX, func() error {
		file, err := s.load()
		if err != nil {
			return err
		}

		changed, err := fn(file)
		if err != nil || !changed {
			return err
		}
		return s.save(file)
	})
}

// Get returns an entry by key. Returns kv.ErrKeyNotFound if not found.
func (s *KVStore) Get(_ context.Context, key string) (kv.Entry, error) {
	var (
		entry kv.Entry
		found bool
	)

	err := s.view(func(file KVFile) {
		entry, found = file.Entries[key]
	})
	if err != nil {
		return kv.Entry{}, err
	}
	if !found {
		return kv.Entry{}, kv.ErrKeyNotFound
	}

	return entry, nil
}

// Set creates or updates an entry, preserving CreatedAt on update.
func (s *KVStore) Set(_ context.Context, key, value string) error {
	return s.mutate(func(file KVFile) (bool, error) {
		now := s.now()
		entry, exists := file.Entries[key]
		if !exists {
			entry = kv.Entry{Key: key, CreatedAt: now}
		}
		entry.Value = value
		entry.UpdatedAt = now

		file.Entries[key] = entry
		return true, nil
	})
}

// Delete removes an entry by key. Returns kv.ErrKeyNotFound if not found.
func (s *KVStore) Delete(_ context.Context, key string) error {
	var notFound bool

	err := s.mutate(func(file KVFile) (bool, error) {
		if _, ok := file.Entries[key]; !ok {
			notFound = true
			return false, nil
		}
		delete(file.Entries, key)
		return true, nil
	})
	if err != nil {
		return err
	}
	if notFound {
		return kv.ErrKeyNotFound
	}

	return nil
}

// List returns all entries matching the prefix, sorted by key.
func (s *KVStore) List(_ context.Context, prefix string) ([]kv.Entry, error) {
	var entries []kv.Entry

	err := s.view(func(file KVFile) {
		for key, entry := range file.Entries {
			if strings.HasPrefix(key, prefix) {
				entries = append(entries, entry)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// load reads the file from disk. A missing or empty file is an empty store.
func (s *KVStore) load() (KVFile, error) {
	empty := KVFile{Entries: make(map[string]kv.Entry)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return KVFile{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return empty, nil
	}

	var file KVFile
	if err := json.Unmarshal(data, &file); err != nil {
		return KVFile{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if file.Entries == nil {
		file.Entries = empty.Entries
	}

	return file, nil
}

// save writes the file atomically via write-to-temp-then-rename.
func (s *KVStore) save(file KVFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp) // best effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
