package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"growthrag/internal/models"
	"growthrag/internal/storage"
)

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Searcher runs nearest-neighbour queries against rag_chunks.
type Searcher struct {
	q          Queryer
	collection string
}

func NewSearcher(q Queryer, collection string) *Searcher {
	return &Searcher{q: q, collection: collection}
}

// SearchChunks returns up to k hits ordered by ascending squared L2 distance.
func (s *Searcher) SearchChunks(ctx context.Context, queryVec []float32, k int, filter *Filter) ([]models.Hit, error) {
	if k <= 0 {
		k = 8
	}
	args := []any{s.collection, pgvector.NewVector(queryVec).String(), k}
	filterSQL, args := filterClause(filter, args)

	query := `
SELECT c.text,
       c.paper_id,
       c.title,
       c.year,
       COALESCE(c.doi, ''),
       c.source,
       COALESCE(c.pdf_url, ''),
       COALESCE(c.landing_url, ''),
       c.chunk_index,
       power(c.embedding <-> $2::vector, 2) AS distance
FROM rag_chunks c
WHERE c.collection = $1` + filterSQL + `
ORDER BY c.embedding <-> $2::vector
LIMIT $3`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]models.Hit, 0, k)
	for rows.Next() {
		var (
			h      models.Hit
			source string
			dist   float64
		)
		m := &h.Meta
		if err := rows.Scan(&h.Text, &m.PaperID, &m.Title, &m.Year, &m.DOI, &source,
			&m.PDFURL, &m.LandingURL, &m.ChunkIndex, &dist); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		m.Source = models.Source(source)
		h.Distance = &dist
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

// filterClause appends positional arguments for each non-empty filter field.
func filterClause(f *Filter, args []any) (string, []any) {
	if f == nil {
		return "", args
	}
	sql := ""
	if len(f.Sources) > 0 {
		src := make([]string, len(f.Sources))
		for i, s := range f.Sources {
			src[i] = string(s)
		}
		args = append(args, src)
		sql += fmt.Sprintf(" AND c.source = ANY($%d)", len(args))
	}
	if len(f.PaperIDs) > 0 {
		args = append(args, f.PaperIDs)
		sql += fmt.Sprintf(" AND c.paper_id = ANY($%d)", len(args))
	}
	if f.MinYear > 0 {
		args = append(args, f.MinYear)
		sql += fmt.Sprintf(" AND c.year >= $%d", len(args))
	}
	return sql, args
}

// PGIndex is the Postgres/pgvector Index backend.
type PGIndex struct {
	repo     *storage.ChunkRepo
	searcher *Searcher
}

func NewPGIndex(db *storage.DB, collection string) *PGIndex {
	return &PGIndex{
		repo:     storage.NewChunkRepo(db, collection),
		searcher: NewSearcher(db.Pool, collection),
	}
}

func (p *PGIndex) Upsert(ctx context.Context, ids, documents []string, metas []models.ChunkMeta, embeddings [][]float32) error {
	recs, err := records(ids, documents, metas, embeddings)
	if err != nil {
		return err
	}
	return p.repo.UpsertChunks(ctx, recs)
}

func (p *PGIndex) Query(ctx context.Context, embedding []float32, k int, filter *Filter) ([]models.Hit, error) {
	return p.searcher.SearchChunks(ctx, embedding, k, filter)
}

func (p *PGIndex) Count(ctx context.Context) (int, error) {
	return p.repo.CountChunks(ctx)
}
