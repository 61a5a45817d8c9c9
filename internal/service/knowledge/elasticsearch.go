package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// ElasticsearchBackend searches a shared index. Scores are normalized against max_score.
type ElasticsearchBackend struct {
	client    *elasticsearch.Client
	index     string
	threshold float64
	log       *zap.Logger
}

// NewElasticsearchClient builds a client from config.
func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{Addresses: cfg.Addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

func NewElasticsearchBackend(client *elasticsearch.Client, index string, threshold float64, log *zap.Logger) *ElasticsearchBackend {
	return &ElasticsearchBackend{
		client:    client,
		index:     index,
		threshold: threshold,
		log:       logger.OrNop(log).Named("knowledge.elasticsearch"),
	}
}

type esDocument struct {
	Content  string `json:"content"`
	SourceID string `json:"source_id"`
}

type esSearchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			Score  float64    `json:"_score"`
			Source esDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticsearchBackend) Index(ctx context.Context, docs []Document) error {
	for _, d := range docs {
		body, err := json.Marshal(esDocument{Content: d.Content, SourceID: d.SourceID})
		if err != nil {
			return fmt.Errorf("encode document %s: %w", d.ID, err)
		}
		res, err := e.client.Index(
			e.index,
			bytes.NewReader(body),
			e.client.Index.WithDocumentID(d.ID),
			e.client.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("index document %s: %w", d.ID, err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("index document %s: %s", d.ID, res.Status())
		}
	}

	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.index),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("refresh index: %s", res.Status())
	}

	e.log.Info("indexed documents", zap.Int("count", len(docs)), zap.String("index", e.index))
	return nil
}

func (e *ElasticsearchBackend) Search(ctx context.Context, query string, k int) ([]Passage, error) {
	if k < 1 {
		return nil, nil
	}
	body, err := json.Marshal(map[string]any{
		"size": k,
		"query": map[string]any{
			"match": map[string]any{fieldContent: query},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search: %s", res.Status())
	}

	var decoded esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if decoded.Hits.MaxScore <= 0 {
		return nil, nil
	}

	passages := make([]Passage, 0, len(decoded.Hits.Hits))
	for _, hit := range decoded.Hits.Hits {
		passages = append(passages, Passage{
			Content:  hit.Source.Content,
			SourceID: hit.Source.SourceID,
			Score:    hit.Score / decoded.Hits.MaxScore,
		})
	}
	return filterByScore(passages, e.threshold), nil
}

func (e *ElasticsearchBackend) Count(ctx context.Context) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(e.index),
	)
	if err != nil {
		return 0, fmt.Errorf("elasticsearch count: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("elasticsearch count: %s", res.Status())
	}

	var decoded struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return decoded.Count, nil
}

func (e *ElasticsearchBackend) Close() error { return nil }
