package llm

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/cache"
)

// CachingGateway memoizes completions keyed by the rendered messages and options.
// Cache failures degrade to a direct call.
type CachingGateway struct {
	next  Gateway
	store cache.Store
	log   *zap.Logger
}

// NewCachingGateway returns next unchanged when store is nil.
func NewCachingGateway(next Gateway, store cache.Store, log *zap.Logger) Gateway {
	if store == nil {
		return next
	}
	return &CachingGateway{next: next, store: store, log: logger.OrNop(log).Named("llm.cache")}
}

type cacheMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (g *CachingGateway) Invoke(ctx context.Context, messages []*schema.Message, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	msgs := make([]cacheMessage, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			msgs = append(msgs, cacheMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	key := cache.Key(cache.PrefixLLM, msgs, o.Temperature)

	if cached, ok, err := g.store.Get(ctx, key); err != nil {
		g.log.Warn("cache lookup failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	out, err := g.next.Invoke(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if err := g.store.Set(ctx, key, out); err != nil {
		g.log.Warn("cache store failed", zap.Error(err))
	}
	return out, nil
}
