package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

const (
	fieldContent  = "content"
	fieldSourceID = "source_id"
)

// BleveBackend is a full-text backend. Scores are normalized against the top
// hit before the threshold is applied.
type BleveBackend struct {
	index     bleve.Index
	threshold float64
	log       *zap.Logger
}

// OpenBleve opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func OpenBleve(path string, threshold float64, log *zap.Logger) (*BleveBackend, error) {
	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	default:
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			index, err = bleve.New(path, bleve.NewIndexMapping())
		} else {
			index, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &BleveBackend{index: index, threshold: threshold, log: logger.OrNop(log).Named("knowledge.bleve")}, nil
}

func (b *BleveBackend) Index(_ context.Context, docs []Document) error {
	batch := b.index.NewBatch()
	for _, d := range docs {
		if err := batch.Index(d.ID, map[string]interface{}{
			fieldContent:  d.Content,
			fieldSourceID: d.SourceID,
		}); err != nil {
			return fmt.Errorf("batch document %s: %w", d.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("index batch: %w", err)
	}
	b.log.Info("indexed documents", zap.Int("count", len(docs)))
	return nil
}

func (b *BleveBackend) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k < 1 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField(fieldContent)

	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{fieldContent, fieldSourceID}

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	if len(res.Hits) == 0 || res.MaxScore <= 0 {
		return nil, nil
	}

	passages := make([]Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields[fieldContent].(string)
		source, _ := hit.Fields[fieldSourceID].(string)
		passages = append(passages, Passage{
			Content:  content,
			SourceID: source,
			Score:    hit.Score / res.MaxScore,
		})
	}
	return filterByScore(passages, b.threshold), nil
}

func (b *BleveBackend) Count(context.Context) (int, error) {
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve count: %w", err)
	}
	return int(n), nil
}

func (b *BleveBackend) Close() error {
	return b.index.Close()
}
