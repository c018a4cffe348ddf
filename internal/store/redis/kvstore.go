// Package redis provides a kv.Store backed by Redis hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// DefaultPrefix namespaces widget records inside a shared Redis database.
const DefaultPrefix = "chatwidget:"

const (
	fieldValue     = "value"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// KVStore implements kv.Store with one Redis hash per record.
type KVStore struct {
	client goredis.UniversalClient
	prefix string
}

var _ kv.Store = (*KVStore)(nil)

// NewKVStore wraps an existing client. An empty prefix uses DefaultPrefix.
func NewKVStore(client goredis.UniversalClient, prefix string) *KVStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KVStore{client: client, prefix: prefix}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, prefix string) (*KVStore, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewKVStore(client, prefix), nil
}

// Close closes the underlying client.
func (s *KVStore) Close() error {
	return s.client.Close()
}

func (s *KVStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *KVStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return kv.Entry{}, fmt.Errorf("redis get %q: %w", key, err)
	}
	if len(fields) == 0 {
		return kv.Entry{}, kv.ErrKeyNotFound
	}
	return decodeEntry(key, fields)
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rkey := s.redisKey(key)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, rkey, fieldCreatedAt, now)
		pipe.HSet(ctx, rkey, fieldValue, value, fieldUpdatedAt, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return fmt.Errorf("redis delete %q: %w", key, err)
	}
	if n == 0 {
		return kv.ErrKeyNotFound
	}
	return nil
}

func (s *KVStore) List(ctx context.Context, prefix string) ([]kv.Entry, error) {
	pattern := escapeGlob(s.redisKey(prefix)) + "*"

	var entries []kv.Entry
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.prefix)
		entry, err := s.Get(ctx, key)
		if err != nil {
			// deleted between SCAN and HGETALL
			if errors.Is(err, kv.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func decodeEntry(key string, fields map[string]string) (kv.Entry, error) {
	entry := kv.Entry{Key: key, Value: fields[fieldValue]}

	var err error
	if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt]); err != nil {
		return kv.Entry{}, fmt.Errorf("parse created_at for %q: %w", key, err)
	}
	if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt]); err != nil {
		return kv.Entry{}, fmt.Errorf("parse updated_at for %q: %w", key, err)
	}
	return entry, nil
}

// escapeGlob escapes Redis MATCH metacharacters so the prefix is matched literally.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
