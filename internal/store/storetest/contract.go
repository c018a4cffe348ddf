// Package storetest holds the behavioural contract every kv.Store backend must satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/kv"
)

// Factory returns a fresh, empty store for a single subtest.
type Factory func(t *testing.T) kv.Store

// Run exercises the kv.Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "foo", "bar"))

		entry, err := store.Get(ctx, "foo")
		require.NoError(t, err)
		assert.Equal(t, "foo", entry.Key)
		assert.Equal(t, "bar", entry.Value)
		assert.False(t, entry.CreatedAt.IsZero(), "CreatedAt should be set")
		assert.False(t, entry.UpdatedAt.IsZero(), "UpdatedAt should be set")
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, "nonexistent")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)
	})

	t.Run("update preserves created at", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "key", "value1"))
		first, err := store.Get(ctx, "key")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, store.Set(ctx, "key", "value2"))

		second, err := store.Get(ctx, "key")
		require.NoError(t, err)
		assert.Equal(t, "value2", second.Value)
		assert.True(t, second.CreatedAt.Equal(first.CreatedAt), "CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
		assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "UpdatedAt should advance")
	})

	t.Run("list by prefix", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, kv.MessagesKey("a"), "[]"))
		require.NoError(t, store.Set(ctx, kv.MessagesKey("b"), "[]"))
		require.NoError(t, store.Set(ctx, kv.SessionKey, "a"))

		entries, err := store.List(ctx, kv.MessagesKeyPrefix)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, kv.MessagesKey("a"), entries[0].Key)
		assert.Equal(t, kv.MessagesKey("b"), entries[1].Key)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Set(ctx, "key", "value"))
		require.NoError(t, store.Delete(ctx, "key"))

		_, err := store.Get(ctx, "key")
		assert.ErrorIs(t, err, kv.ErrKeyNotFound)

		assert.ErrorIs(t, store.Delete(ctx, "key"), kv.ErrKeyNotFound)
	})

	t.Run("concurrent access", func(t *testing.T) {
		store := newStore(t)

		const (
			goroutines = 8
			iterations = 10
		)

		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < iterations; j++ {
					key := fmt.Sprintf("key-%d-%d", id, j)
					if err := store.Set(ctx, key, "value"); err != nil {
						t.Errorf("Set failed: %v", err)
						return
					}
					if _, err := store.Get(ctx, key); err != nil {
						t.Errorf("Get failed: %v", err)
						return
					}
				}
			}(i)
		}
		wg.Wait()

		entries, err := store.List(ctx, "key-")
		require.NoError(t, err)
		assert.Len(t, entries, goroutines*iterations)
	})
}
