package commands

import (
	"context"
	"fmt"

	"github.com/hay-kot/chatwidget/internal/core/config"
	"github.com/hay-kot/chatwidget/internal/core/kv"
	"github.com/hay-kot/chatwidget/internal/store/jsonfile"
	"github.com/hay-kot/chatwidget/internal/store/memory"
	"github.com/hay-kot/chatwidget/internal/store/redis"
	"github.com/hay-kot/chatwidget/internal/store/sqlite"
)

// OpenStore opens the backend named by cfg.Storage.Driver. The returned
// function releases it.
func OpenStore(ctx context.Context, cfg *config.Config) (kv.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.StorageJSONFile:
		return jsonfile.NewKVStore(cfg.Storage.Path), noop, nil
	case config.StorageMemory:
		return memory.NewKVStore(), noop, nil
	case config.StorageSQLite:
		s, err := sqlite.NewKVStore(cfg.Storage.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.StorageRedis:
		s, err := redis.Dial(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
		if err != nil {
			return nil, noop, fmt.Errorf("open redis store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
