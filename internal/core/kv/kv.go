// Package kv defines the keyed record storage that widget persistence lives in.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// Record keys used by the widget. The layout matches what browser hosts keep in
// localStorage so history can be shared with them.
const (
	SessionKey        = "chatSessionId"
	MessagesKeyPrefix = "chat_messages_"
)

// MessagesKey returns the key holding the serialized conversation for a session.
func MessagesKey(sessionID string) string {
	return MessagesKeyPrefix + sessionID
}

// Entry represents a stored record with metadata.
type Entry struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines persistence operations for keyed records.
type Store interface {
	// Get returns an entry by key. Returns ErrKeyNotFound if not found.
	Get(ctx context.Context, key string) (Entry, error)
	// Set creates or updates an entry. Writes are last-write-wins.
	Set(ctx context.Context, key, value string) error
	// Delete removes an entry by key. Returns ErrKeyNotFound if not found.
	Delete(ctx context.Context, key string) error
	// List returns all entries whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

type prefixed struct {
	next   Store
	prefix string
}

// WithPrefix scopes a store so every key is stored under prefix. Entries
// returned from it carry the unprefixed key.
func WithPrefix(next Store, prefix string) Store {
	if next == nil || prefix == "" {
		return next
	}
	return prefixed{next: next, prefix: prefix}
}

func (p prefixed) Get(ctx context.Context, key string) (Entry, error) {
	e, err := p.next.Get(ctx, p.prefix+key)
	if err != nil {
		return Entry{}, err
	}
	e.Key = key
	return e, nil
}

func (p prefixed) Set(ctx context.Context, key, value string) error {
	return p.next.Set(ctx, p.prefix+key, value)
}

func (p prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}

func (p prefixed) List(ctx context.Context, prefix string) ([]Entry, error) {
	entries, err := p.next.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = entries[i].Key[len(p.prefix):]
	}
	return entries, nil
}
