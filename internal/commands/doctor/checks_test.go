package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/store/memory"
)

func TestConfigCheck(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		result := NewConfigCheck(nil, "").Run(context.Background())
		require.Len(t, result.Items, 1)
		assert.Equal(t, StatusFail, result.Items[0].Status)
	})

	t.Run("valid with warnings", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "widget.json")

		result := NewConfigCheck(&cfg, filepath.Join(t.TempDir(), "config.yaml")).Run(context.Background())

		require.NotEmpty(t, result.Items)
		for _, item := range result.Items {
			assert.Equal(t, StatusWarn, item.Status, item.Label)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.DataDir = t.TempDir()
		cfg.Storage.Path = filepath.Join(cfg.DataDir, "widget.json")
		cfg.Language = "xx"

		result := NewConfigCheck(&cfg, "").Run(context.Background())

		var failed []string
		for _, item := range result.Items {
			if item.Status == StatusFail {
				failed = append(failed, item.Label)
			}
		}
		assert.Contains(t, failed, "language")
	})
}

func TestStorageCheck(t *testing.T) {
	store := memory.NewKVStore()
	result := NewStorageCheck(store, "memory").Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)

	entries, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries, "probe record is removed")
}

type brokenStore struct{ kv.Store }

func (brokenStore) Set(context.Context, string, string) error { return errors.New("read-only") }

func TestStorageCheck_Failures(t *testing.T) {
	result := NewStorageCheck(nil, "redis").Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
	assert.Equal(t, "storage not opened", result.Items[0].Detail)

	result = NewStorageCheck(nil, "redis").WithOpenError(errors.New("dial tcp: connection refused")).Run(context.Background())
	assert.Equal(t, "dial tcp: connection refused", result.Items[0].Detail)

	result = NewStorageCheck(brokenStore{memory.NewKVStore()}, "jsonfile").Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Detail, "read-only")
}

func TestResponderCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodOptions, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	result := NewResponderCheck(srv.URL, srv.Client()).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
}

func TestResponderCheck_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := NewResponderCheck(srv.URL, srv.Client()).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusWarn, result.Items[0].Status)
}

func TestResponderCheck_Unset(t *testing.T) {
	result := NewResponderCheck("", nil).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusWarn, result.Items[0].Status)
}

func TestResponderCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := NewResponderCheck(url, nil).Run(context.Background())
	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
}

func TestRunAllAndSummary(t *testing.T) {
	results := RunAll(context.Background(), []Check{
		NewStorageCheck(memory.NewKVStore(), "memory"),
		NewResponderCheck("", nil),
		NewStorageCheck(nil, "redis"),
	})

	require.Len(t, results, 3)
	assert.Equal(t, "Storage", results[0].Name)
	assert.Equal(t, "Responder", results[1].Name)

	data, err := json.Marshal(results[0].Items[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"pass"`)

	passed, warned, failed := Summary(results)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, warned)
	assert.Equal(t, 1, failed)
}
