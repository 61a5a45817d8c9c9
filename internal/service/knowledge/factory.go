package knowledge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/lifeline/backend/internal/config"
	"github.com/zhouzirui/lifeline/backend/internal/logger"
)

// ErrIndexEmpty is returned when the knowledge directory yields no documents.
var ErrIndexEmpty = errors.New("knowledge directory has no indexable documents")

// Open builds the backend selected by cfg.Knowledge.Backend.
func Open(cfg *config.Config, log *zap.Logger) (Backend, error) {
	kc := cfg.Knowledge
	switch kc.Backend {
	case "bleve", "":
		return OpenBleve(kc.IndexPath, kc.ScoreThreshold, log)
	case "chromem":
		if kc.EmbeddingKey == "" {
			return nil, fmt.Errorf("knowledge.embedding_api_key is required for the chromem backend")
		}
		embed := NewOpenAIEmbedder(kc.EmbeddingKey, kc.EmbeddingModel)
		return OpenChromem(kc.IndexPath, kc.Collection, embed, kc.ScoreThreshold, log)
	case "elasticsearch":
		client, err := NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return NewElasticsearchBackend(client, cfg.Elasticsearch.Index, kc.ScoreThreshold, log), nil
	default:
		return nil, fmt.Errorf("unsupported knowledge backend %q", kc.Backend)
	}
}

// IndexDir loads, chunks and indexes every file under dir. It returns the number
// of chunks written.
func IndexDir(ctx context.Context, backend Indexer, dir string, chunker Chunker) (int, error) {
	files, err := LoadDir(dir)
	if err != nil {
		return 0, err
	}
	docs := BuildDocuments(files, chunker)
	if len(docs) == 0 {
		return 0, nil
	}
	if err := backend.Index(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// EnsureIndexed indexes the knowledge directory when the backend is empty.
func EnsureIndexed(ctx context.Context, backend Backend, kc config.KnowledgeConfig, log *zap.Logger) error {
	log = logger.OrNop(log)
	n, err := backend.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("knowledge base already indexed", zap.Int("documents", n))
		return nil
	}

	indexed, err := IndexDir(ctx, backend, kc.Dir, NewChunker(kc.ChunkSize, kc.ChunkOverlap))
	if err != nil {
		return fmt.Errorf("index knowledge base: %w", err)
	}
	if indexed == 0 {
		return fmt.Errorf("%w: %s", ErrIndexEmpty, kc.Dir)
	}
	log.Info("knowledge base indexed", zap.String("dir", kc.Dir), zap.Int("chunks", indexed))
	return nil
}
