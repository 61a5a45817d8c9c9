package knowledge

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/service/cache"
)

// CachedRetriever memoizes search results by query and k. Errors are not cached.
type CachedRetriever struct {
	next  Retriever
	store cache.Store
	log   *zap.Logger
}

// NewCachedRetriever returns next unchanged when store is nil.
func NewCachedRetriever(next Retriever, store cache.Store, log *zap.Logger) Retriever {
	if store == nil {
		return next
	}
	return &CachedRetriever{next: next, store: store, log: logger.OrNop(log).Named("knowledge.cache")}
}

func (c *CachedRetriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	key := cache.Key(cache.PrefixRetrieval, query, k)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		c.log.Warn("cache lookup failed", zap.Error(err))
	} else if ok {
		var passages []Passage
		if err := json.Unmarshal([]byte(raw), &passages); err == nil {
			return passages, nil
		}
	}

	passages, err := c.next.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(passages); err == nil {
		if err := c.store.Set(ctx, key, string(raw)); err != nil {
			c.log.Warn("cache store failed", zap.Error(err))
		}
	}
	return passages, nil
}

// SearchRecorder receives one observation per search.
type SearchRecorder interface {
	RecordRetrieval(outcome string)
}

type recordingRetriever struct {
	next Retriever
	rec  SearchRecorder
}

// WithRecorder reports "hit", "empty" or "error" for every search.
func WithRecorder(next Retriever, rec SearchRecorder) Retriever {
	if rec == nil {
		return next
	}
	return &recordingRetriever{next: next, rec: rec}
}

func (r *recordingRetriever) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	passages, err := r.next.Search(ctx, query, k)
	switch {
	case err != nil:
		r.rec.RecordRetrieval("error")
	case len(passages) == 0:
		r.rec.RecordRetrieval("empty")
	default:
		r.rec.RecordRetrieval("hit")
	}
	return passages, err
}
