package vector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"growthrag/internal/config"
	"growthrag/internal/models"
	"growthrag/internal/storage"
	"growthrag/internal/util"
)

// Filter narrows a query. Zero-valued fields do not filter.
type Filter struct {
	Sources  []models.Source
	PaperIDs []string
	MinYear  int
}

func (f *Filter) match(m models.ChunkMeta) bool {
	if f == nil {
		return true
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, m.Source) {
		return false
	}
	if len(f.PaperIDs) > 0 && !slices.Contains(f.PaperIDs, m.PaperID) {
		return false
	}
	if f.MinYear > 0 && (m.Year == nil || *m.Year < f.MinYear) {
		return false
	}
	return true
}

type Writer interface {
	Upsert(ctx context.Context, ids, documents []string, metas []models.ChunkMeta, embeddings [][]float32) error
}

type Querier interface {
	Query(ctx context.Context, embedding []float32, k int, filter *Filter) ([]models.Hit, error)
}

// Index is a durable collection of chunks searchable by embedding.
type Index interface {
	Writer
	Querier
	Count(ctx context.Context) (int, error)
}

func records(ids, documents []string, metas []models.ChunkMeta, embeddings [][]float32) ([]models.ChunkRecord, error) {
	n := len(ids)
	if len(documents) != n || len(metas) != n || len(embeddings) != n {
		return nil, fmt.Errorf("%w: ids=%d documents=%d metadatas=%d embeddings=%d",
			util.ErrLengthMismatch, n, len(documents), len(metas), len(embeddings))
	}
	out := make([]models.ChunkRecord, n)
	for i := range ids {
		out[i] = models.ChunkRecord{ID: ids[i], Text: documents[i], Embedding: embeddings[i], Meta: metas[i]}
	}
	return out, nil
}

// Open builds the configured index backend. The returned close func releases it.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Index, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.IndexBackend)) {
	case "file":
		idx, err := OpenFileIndex(cfg.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("vector index opened", "backend", "file", "path", cfg.IndexPath, "records", idx.Len())
		return idx, func() {}, nil
	case "pgvector", "":
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.InitSchema(ctx, cfg.EmbedDim); err != nil {
			db.Close()
			return nil, nil, err
		}
		idx := NewPGIndex(db, cfg.Collection)
		if n, err := idx.Count(ctx); err == nil {
			logger.Info("vector index opened", "backend", "pgvector", "collection", cfg.Collection, "records", n)
		}
		return idx, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported index backend: %s", cfg.IndexBackend)
	}
}
