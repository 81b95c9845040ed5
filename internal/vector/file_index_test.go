package vector

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"growthrag/internal/models"
	"growthrag/internal/util"
)

func meta(paperID string, src models.Source, year int, idx int) models.ChunkMeta {
	y := year
	return models.ChunkMeta{
		PaperMeta:  models.PaperMeta{PaperID: paperID, Title: "T " + paperID, Source: src, Year: &y},
		ChunkIndex: idx,
	}
}

func TestFileIndex_QueryOrdersByDistance(t *testing.T) {
	idx, err := OpenFileIndex(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	ctx := context.Background()

	err = idx.Upsert(ctx,
		[]string{"a", "b", "c"},
		[]string{"far", "near", "mid"},
		[]models.ChunkMeta{meta("p1", models.SourcePMC, 2020, 0), meta("p2", models.SourceOpenAlex, 2018, 0), meta("p3", models.SourcePMC, 2022, 0)},
		[][]float32{{0, 1}, {1, 0}, {0.8, 0.6}},
	)
	require.NoError(t, err)

	hits, err := idx.Query(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "near", hits[0].Text)
	require.Equal(t, "mid", hits[1].Text)
	require.InDelta(t, 0.0, *hits[0].Distance, 1e-9)
	require.InDelta(t, 0.4, *hits[1].Distance, 1e-6)
}

func TestFileIndex_UpsertReplacesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "chunks.json")
	idx, err := OpenFileIndex(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"v1"}, []models.ChunkMeta{meta("p1", "", 2020, 0)}, [][]float32{{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"v2"}, []models.ChunkMeta{meta("p1", "", 2020, 0)}, [][]float32{{1, 0}}))
	require.Equal(t, 1, idx.Len())

	reopened, err := OpenFileIndex(path)
	require.NoError(t, err)
	hits, err := reopened.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "v2", hits[0].Text)
	require.Equal(t, models.SourceOA, hits[0].Meta.Source)
}

func TestFileIndex_LengthMismatch(t *testing.T) {
	idx, err := OpenFileIndex(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	err = idx.Upsert(context.Background(), []string{"a", "b"}, []string{"x"}, []models.ChunkMeta{{}}, [][]float32{{1}})
	require.ErrorIs(t, err, util.ErrLengthMismatch)
	require.Equal(t, 0, idx.Len())
}

func TestFileIndex_Filter(t *testing.T) {
	idx, err := OpenFileIndex(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]string{"a", "b", "c"},
		[]string{"pmc old", "pmc new", "oa new"},
		[]models.ChunkMeta{meta("p1", models.SourcePMC, 2010, 0), meta("p2", models.SourcePMC, 2021, 0), meta("p3", models.SourceOpenAlex, 2021, 0)},
		[][]float32{{1, 0}, {1, 0}, {1, 0}},
	))

	hits, err := idx.Query(ctx, []float32{1, 0}, 8, &Filter{Sources: []models.Source{models.SourcePMC}, MinYear: 2015})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "pmc new", hits[0].Text)

	hits, err = idx.Query(ctx, []float32{1, 0}, 8, &Filter{PaperIDs: []string{"p3", "p1"}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestFileIndex_ConcurrentUpsertAndQuery(t *testing.T) {
	idx, err := OpenFileIndex(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				id := string(rune('a'+w)) + string(rune('0'+i))
				_ = idx.Upsert(ctx, []string{id}, []string{id}, []models.ChunkMeta{meta(id, models.SourcePMC, 2020, i)}, [][]float32{{1, 0}})
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, _ = idx.Query(ctx, []float32{1, 0}, 4, nil)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 40, idx.Len())
}

func TestFilterClause(t *testing.T) {
	sql, args := filterClause(nil, []any{"c", "v", 8})
	require.Empty(t, sql)
	require.Len(t, args, 3)

	sql, args = filterClause(&Filter{
		Sources:  []models.Source{models.SourcePMC},
		PaperIDs: []string{"p1"},
		MinYear:  2015,
	}, []any{"c", "v", 8})
	require.Equal(t, " AND c.source = ANY($4) AND c.paper_id = ANY($5) AND c.year >= $6", sql)
	require.Equal(t, []any{"c", "v", 8, []string{"pmc"}, []string{"p1"}, 2015}, args)
}

func TestFileIndex_FailedPersistLeavesIndexUnchanged(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	path := filepath.Join(dir, "chunks.json")
	idx, err := OpenFileIndex(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"v1"}, []models.ChunkMeta{meta("p1", "", 2020, 0)}, [][]float32{{1, 0}}))

	// A plain file where the snapshot directory should be makes the write fail.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	err = idx.Upsert(ctx,
		[]string{"a", "b"},
		[]string{"v2", "new"},
		[]models.ChunkMeta{meta("p1", "", 2020, 0), meta("p2", "", 2021, 0)},
		[][]float32{{1, 0}, {0, 1}},
	)
	require.ErrorContains(t, err, "persist file index")
	require.Equal(t, 1, idx.Len())

	hits, err := idx.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "v1", hits[0].Text)
}

func TestFileIndex_QueryRejectsDimensionMismatch(t *testing.T) {
	idx, err := OpenFileIndex(filepath.Join(t.TempDir(), "chunks.json"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []string{"a"}, []string{"v"}, []models.ChunkMeta{meta("p1", "", 2020, 0)}, [][]float32{{1, 0, 0}}))

	_, err = idx.Query(ctx, []float32{1, 0}, 5, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
