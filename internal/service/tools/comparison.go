package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
)

// KnowledgeComparator answers comparisons straight from the knowledge base.
type KnowledgeComparator struct {
	retriever knowledge.Retriever
	k         int
}

func NewKnowledgeComparator(r knowledge.Retriever, k int) *KnowledgeComparator {
	if k < 1 {
		k = 4
	}
	return &KnowledgeComparator{retriever: r, k: k}
}

func (c *KnowledgeComparator) Compare(ctx context.Context, policyTypes []string) (*PolicyComparison, error) {
	if len(policyTypes) < 2 {
		return nil, errors.New("comparison needs at least two policy types")
	}
	if c.retriever == nil {
		return nil, errors.New("knowledge retriever not configured")
	}

	query := fmt.Sprintf("Compare %s life insurance policies including features, benefits, and costs",
		strings.Join(policyTypes, ", "))
	passages, err := c.retriever.Search(ctx, query, c.k)
	if err != nil {
		return nil, fmt.Errorf("search comparison: %w", err)
	}
	if len(passages) == 0 {
		return &PolicyComparison{Comparison: noCriteriaFound, Sources: []string{}}, nil
	}
	return &PolicyComparison{
		Comparison: knowledge.FormatContext(passages),
		Sources:    knowledge.Sources(passages),
	}, nil
}
