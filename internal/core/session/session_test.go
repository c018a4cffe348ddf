package session

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/store/memory"
)

var idPattern = regexp.MustCompile(`^session_\d+_[0-9a-z]{9}$`)

type failingStore struct{ kv.Store }

func (failingStore) Get(context.Context, string) (kv.Entry, error) {
	return kv.Entry{}, errors.New("disk on fire")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("disk on fire")
}

func TestNewID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewID(now)
	assert.Regexp(t, idPattern, id)

	created, ok := CreatedAtFromID(id)
	require.True(t, ok)
	assert.True(t, created.Equal(now))
}

func TestCreatedAtFromID_Invalid(t *testing.T) {
	for _, id := range []string{"", "session", "sess_1_abc", "session_x_abc"} {
		_, ok := CreatedAtFromID(id)
		assert.False(t, ok, id)
	}
}

func TestObtain_PersistReturnsStoredID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	require.NoError(t, store.Set(ctx, kv.SessionKey, "session_1_abcdefghi"))

	m := NewManager(store, zerolog.Nop())
	assert.Equal(t, "session_1_abcdefghi", m.Obtain(ctx, true))
}

func TestObtain_PersistStoresNewID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	m := NewManager(store, zerolog.Nop())

	first := m.Obtain(ctx, true)
	assert.Regexp(t, idPattern, first)

	entry, err := store.Get(ctx, kv.SessionKey)
	require.NoError(t, err)
	assert.Equal(t, first, entry.Value)

	// stable across managers sharing the store
	assert.Equal(t, first, NewManager(store, zerolog.Nop()).Obtain(ctx, true))
}

func TestObtain_NoPersistNeverStores(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	m := NewManager(store, zerolog.Nop())

	id := m.Obtain(ctx, false)
	assert.Regexp(t, idPattern, id)

	_, err := store.Get(ctx, kv.SessionKey)
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestObtain_StorageFailureDegrades(t *testing.T) {
	m := NewManager(failingStore{}, zerolog.Nop())
	assert.Regexp(t, idPattern, m.Obtain(context.Background(), true))
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKVStore()
	m := NewManager(store, zerolog.Nop())

	first := m.Obtain(ctx, true)
	require.NoError(t, m.Forget(ctx))
	require.NoError(t, m.Forget(ctx), "forgetting twice is fine")

	second := m.Obtain(ctx, true)
	assert.NotEqual(t, first, second)
}

func TestForget_NilStore(t *testing.T) {
	m := NewManager(nil, zerolog.Nop())
	assert.NoError(t, m.Forget(context.Background()))
	assert.Regexp(t, idPattern, m.Obtain(context.Background(), true))
}
