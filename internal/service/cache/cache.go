// Package cache memoizes retrieval and generation results by content hash.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
)

const (
	PrefixRetrieval = "rag:"
	PrefixLLM       = "llm:"
)

// Store is a string key/value cache with a store-wide TTL.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Key hashes the JSON encoding of parts under prefix.
func Key(prefix string, parts ...any) string {
	raw, err := json.Marshal(parts)
	if err != nil {
		raw = []byte(fmt.Sprint(parts...))
	}
	sum := sha256.Sum256(raw)
	return prefix + hex.EncodeToString(sum[:])
}

// Open returns the configured cache, or nil when caching is disabled.
func Open(cfg config.CacheConfig, client *redis.Client, prefix string, log *zap.Logger) Store {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" && client != nil {
		return NewRedisStore(client, prefix, cfg.TTL, log)
	}
	return NewMemoryStore(cfg.TTL, cfg.MaxSize)
}
