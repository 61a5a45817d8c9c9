package tools

import (
	"context"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
)

const (
	noCriteriaFound = "No relevant information found."
	criteriaError   = "Error searching knowledge base."
)

type criteria struct {
	context string
	sources []string
}

// searchCriteria pulls reference passages for a tool prompt. Failures degrade
// to fixed placeholder text.
func searchCriteria(ctx context.Context, r knowledge.Retriever, query string, k int, log *zap.Logger) criteria {
	if r == nil {
		return criteria{context: noCriteriaFound}
	}
	passages, err := r.Search(ctx, query, k)
	if err != nil {
		log.Warn("criteria search failed", zap.String("query", query), zap.Error(err))
		return criteria{context: criteriaError}
	}
	if len(passages) == 0 {
		return criteria{context: noCriteriaFound}
	}
	return criteria{context: knowledge.FormatContext(passages), sources: knowledge.Sources(passages)}
}
