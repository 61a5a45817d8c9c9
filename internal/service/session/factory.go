package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
)

// Open builds the store selected by memory.backend.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (Store, error) {
	switch cfg.Memory.Backend {
	case "redis":
		store := NewRedisStore(NewRedisClient(cfg.Redis), cfg.Redis.Prefix, cfg.Memory.MaxHistory, log)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		return store, nil
	case "postgres":
		db, err := OpenPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db, cfg.Memory.MaxHistory, log)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return NewMemoryStore(cfg.Memory.MaxHistory, log), nil
	}
}
