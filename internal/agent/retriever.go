package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/knowledge"
	"github.com/zhouzirui/lifeline/backend/internal/service/session"
)

// Fixed context texts used when retrieval has nothing to offer.
const (
	NoInformationFound = "No specific information found."
	RetrievalFailed    = "Error retrieving information."
)

// HistorySource supplies recent conversation turns. session.Store satisfies it.
type HistorySource interface {
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
}

// ContextRetriever builds a search query from the question, recent history and
// intent, and formats the matching passages for the answer prompt.
type ContextRetriever struct {
	knowledge    knowledge.Retriever
	history      HistorySource
	k            int
	historyLimit int
	log          *zap.Logger
}

func NewContextRetriever(r knowledge.Retriever, history HistorySource, k, historyLimit int, log *zap.Logger) *ContextRetriever {
	if k < 1 {
		k = 2
	}
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &ContextRetriever{
		knowledge:    r,
		history:      history,
		k:            k,
		historyLimit: historyLimit,
		log:          logger.OrNop(log).Named("agent.retriever"),
	}
}

// Retrieve never fails: it returns formatted passages or one of the fixed texts.
func (r *ContextRetriever) Retrieve(ctx context.Context, question string, intent Category, sessionID string) string {
	query, err := r.Query(ctx, question, intent, sessionID)
	if err != nil {
		r.log.Error("failed to build search query", zap.Error(err))
		return RetrievalFailed
	}
	if r.knowledge == nil {
		r.log.Error("no knowledge retriever configured")
		return RetrievalFailed
	}

	passages, err := r.knowledge.Search(ctx, query, r.k)
	if err != nil {
		r.log.Error("knowledge search failed", zap.Error(err))
		return RetrievalFailed
	}
	if len(passages) == 0 {
		return NoInformationFound
	}

	r.log.Info("retrieved context", zap.Int("passages", len(passages)))
	return knowledge.FormatContext(passages)
}

// Query composes the search text for a question.
func (r *ContextRetriever) Query(ctx context.Context, question string, intent Category, sessionID string) (string, error) {
	query := question

	if sessionID != "" && r.history != nil && r.historyLimit > 0 {
		msgs, err := r.history.RecentMessages(ctx, sessionID, r.historyLimit)
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
		case err != nil:
			return "", fmt.Errorf("load history: %w", err)
		case len(msgs) > 0:
			query = fmt.Sprintf("%s\n\nCurrent question: %s", session.FormatRecent(msgs), question)
		}
	}

	if kw, ok := searchKeywords[intent]; ok {
		query = query + " " + kw
	}
	return query, nil
}
