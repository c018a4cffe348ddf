package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/store/storetest"
)

func TestKVStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) kv.Store {
		return NewKVStore(filepath.Join(t.TempDir(), "widget.json"))
	})
}

func TestKVStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "widget.json")
	ctx := context.Background()

	require.NoError(t, NewKVStore(path).Set(ctx, kv.SessionKey, "session_1_abc"))

	entry, err := NewKVStore(path).Get(ctx, kv.SessionKey)
	require.NoError(t, err)
	assert.Equal(t, "session_1_abc", entry.Value)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestKVStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	entries, err := NewKVStore(path).List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestKVStore_CorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.json")
	require.NoError(t, os.WriteFile(path, []byte("{invalid json"), 0o644))

	store := NewKVStore(path)
	ctx := context.Background()

	_, err := store.Get(ctx, "any")
	assert.Error(t, err, "expected error for corrupted JSON")

	err = store.Set(ctx, "key", "value")
	assert.Error(t, err, "Set must not overwrite a file it cannot read")
}
