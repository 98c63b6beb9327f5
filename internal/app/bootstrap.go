package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/silaibook/silaibook/internal/platform/db"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
)

// OpenBackend connects the configured store. The returned close func is never nil.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (Backend, func(), error) {
	switch cfg.StoreDriver {
	case StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return MemoryBackend(memory.New()), func() {}, nil
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, 0)
		if err != nil {
			return Backend{}, func() {}, err
		}
		if cfg.PGMigrate {
			if err := db.Migrate(ctx, pool, logger); err != nil {
				pool.Close()
				return Backend{}, func() {}, err
			}
		}
		return PostgresBackend(pool), pool.Close, nil
	default:
		return Backend{}, func() {}, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
}

// NewLocker picks the per-customer lock backend.
func NewLocker(cfg *Config, client redis.UniversalClient) shared.Locker {
	if cfg.LockBackend == LockRedis && client != nil {
		return shared.NewRedisLocker(client, cfg.LockTTL, cfg.LockTTL)
	}
	return shared.NewKeyedMutex()
}
