package storage

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"growthrag/internal/models"
)

type ChunkRepo struct {
	db         *DB
	collection string
}

func NewChunkRepo(db *DB, collection string) *ChunkRepo {
	return &ChunkRepo{db: db, collection: collection}
}

// UpsertChunks writes all records in one transaction. Existing ids are replaced.
func (r *ChunkRepo) UpsertChunks(ctx context.Context, chunks []models.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, c := range chunks {
		m := c.Meta
		source := string(m.Source)
		if source == "" {
			source = string(models.SourceOA)
		}
		_, err := tx.Exec(ctx, `
INSERT INTO rag_chunks (collection, id, paper_id, title, year, doi, source, pdf_url, landing_url, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), $10, $11, $12::vector)
ON CONFLICT (collection, id)
DO UPDATE SET
  paper_id = EXCLUDED.paper_id,
  title = EXCLUDED.title,
  year = EXCLUDED.year,
  doi = EXCLUDED.doi,
  source = EXCLUDED.source,
  pdf_url = EXCLUDED.pdf_url,
  landing_url = EXCLUDED.landing_url,
  chunk_index = EXCLUDED.chunk_index,
  text = EXCLUDED.text,
  embedding = EXCLUDED.embedding`,
			r.collection, c.ID, m.PaperID, m.Title, m.Year, m.DOI, source, m.PDFURL, m.LandingURL,
			m.ChunkIndex, c.Text, pgvector.NewVector(c.Embedding).String(),
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (r *ChunkRepo) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM rag_chunks WHERE collection=$1`, r.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
