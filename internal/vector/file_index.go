package vector

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"growthrag/internal/models"
	"growthrag/internal/util"
)

var ErrDimensionMismatch = errors.New("different vector dimensions")

type fileSnapshot struct {
	Records []models.ChunkRecord `json:"records"`
}

// FileIndex keeps all chunks in memory and rewrites a JSON snapshot after every upsert.
type FileIndex struct {
	path string

	mu      sync.RWMutex
	records []models.ChunkRecord
	byID    map[string]int
}

func OpenFileIndex(path string) (*FileIndex, error) {
	idx := &FileIndex{path: path, byID: map[string]int{}}
	var snap fileSnapshot
	if _, err := util.ReadJSON(path, &snap); err != nil {
		return nil, fmt.Errorf("open file index: %w", err)
	}
	for _, r := range snap.Records {
		idx.put(r)
	}
	return idx, nil
}

func (f *FileIndex) put(r models.ChunkRecord) {
	f.records = putRecord(f.records, f.byID, r)
}

func putRecord(records []models.ChunkRecord, byID map[string]int, r models.ChunkRecord) []models.ChunkRecord {
	if i, ok := byID[r.ID]; ok {
		records[i] = r
		return records
	}
	byID[r.ID] = len(records)
	return append(records, r)
}

func (f *FileIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.records)
}

func (f *FileIndex) Count(context.Context) (int, error) { return f.Len(), nil }

func (f *FileIndex) Upsert(ctx context.Context, ids, documents []string, metas []models.ChunkMeta, embeddings [][]float32) error {
	recs, err := records(ids, documents, metas, embeddings)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// Changes become visible only once the snapshot is on disk.
	next := slices.Clone(f.records)
	nextByID := maps.Clone(f.byID)
	for _, r := range recs {
		if r.Meta.Source == "" {
			r.Meta.Source = models.SourceOA
		}
		next = putRecord(next, nextByID, r)
	}
	if err := util.WriteJSONAtomic(f.path, fileSnapshot{Records: next}); err != nil {
		return fmt.Errorf("persist file index: %w", err)
	}
	f.records, f.byID = next, nextByID
	return nil
}

func (f *FileIndex) Query(ctx context.Context, embedding []float32, k int, filter *Filter) ([]models.Hit, error) {
	if k <= 0 {
		k = 8
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	type scored struct {
		pos  int
		dist float64
	}
	cands := make([]scored, 0, len(f.records))
	for i, r := range f.records {
		if !filter.match(r.Meta) {
			continue
		}
		if len(r.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: record %s has %d dimensions, query has %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), len(embedding))
		}
		cands = append(cands, scored{pos: i, dist: squaredL2(r.Embedding, embedding)})
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })
	if len(cands) > k {
		cands = cands[:k]
	}
	hits := make([]models.Hit, 0, len(cands))
	for _, c := range cands {
		r := f.records[c.pos]
		d := c.dist
		hits = append(hits, models.Hit{Text: r.Text, Meta: r.Meta, Distance: &d})
	}
	return hits, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
