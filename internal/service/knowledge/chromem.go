package knowledge

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// ChromemBackend is an embedded vector store. Scores are cosine similarities.
type ChromemBackend struct {
	db         *chromem.DB
	collection *chromem.Collection
	threshold  float64
	log        *zap.Logger
}

// NewOpenAIEmbedder returns the OpenAI embedding function chromem uses by default.
func NewOpenAIEmbedder(apiKey, model string) chromem.EmbeddingFunc {
	if model == "" {
		model = string(chromem.EmbeddingModelOpenAI3Small)
	}
	return chromem.NewEmbeddingFuncOpenAI(apiKey, chromem.EmbeddingModelOpenAI(model))
}

// OpenChromem opens a persistent database at path, or an in-memory one when
// path is empty.
func OpenChromem(path, collection string, embed chromem.EmbeddingFunc, threshold float64, log *zap.Logger) (*ChromemBackend, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection: %w", err)
	}
	return &ChromemBackend{
		db:         db,
		collection: col,
		threshold:  threshold,
		log:        logger.OrNop(log).Named("knowledge.chromem"),
	}, nil
}

func (c *ChromemBackend) Index(ctx context.Context, docs []Document) error {
	batch := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		batch = append(batch, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: map[string]string{fieldSourceID: d.SourceID},
		})
	}
	if err := c.collection.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem add documents: %w", err)
	}
	c.log.Info("indexed documents", zap.Int("count", len(docs)))
	return nil
}

func (c *ChromemBackend) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	// chromem rejects k larger than the collection.
	if n := c.collection.Count(); k > n {
		k = n
	}
	if k < 1 {
		return nil, nil
	}

	results, err := c.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{
			Content:  r.Content,
			SourceID: r.Metadata[fieldSourceID],
			Score:    float64(r.Similarity),
		})
	}
	return filterByScore(passages, c.threshold), nil
}

func (c *ChromemBackend) Count(context.Context) (int, error) {
	return c.collection.Count(), nil
}

func (c *ChromemBackend) Close() error { return nil }
