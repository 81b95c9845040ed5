package storage

import (
	"context"
	"fmt"
)

// InitSchema creates the pgvector extension, the chunk table and its HNSW index.
func (d *DB) InitSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS rag_chunks (
  collection  TEXT NOT NULL,
  id          TEXT NOT NULL,
  paper_id    TEXT NOT NULL,
  title       TEXT NOT NULL DEFAULT '',
  year        INT,
  doi         TEXT,
  source      TEXT NOT NULL DEFAULT 'oa',
  pdf_url     TEXT,
  landing_url TEXT,
  chunk_index INT NOT NULL,
  text        TEXT NOT NULL,
  embedding   vector(%d) NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (collection, id)
)`, dim),
		`CREATE INDEX IF NOT EXISTS rag_chunks_embedding_hnsw ON rag_chunks USING hnsw (embedding vector_l2_ops)`,
		`CREATE INDEX IF NOT EXISTS rag_chunks_paper ON rag_chunks (collection, paper_id)`,
	}
	for _, s := range stmts {
		if _, err := d.Pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
