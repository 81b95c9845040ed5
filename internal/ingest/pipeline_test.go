package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"growthrag/internal/models"
	"growthrag/internal/util"
)

type fakeExtractor struct {
	text    string
	err     error
	gotPath string
	gotBody string
}

func (f *fakeExtractor) Extract(path string) (string, error) {
	f.gotPath = path
	if b, err := os.ReadFile(path); err == nil {
		f.gotBody = string(b)
	}
	return f.text, f.err
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type upsertCall struct {
	ids   []string
	docs  []string
	metas []models.ChunkMeta
}

type spyIndex struct {
	mu    sync.Mutex
	calls []upsertCall
	err   error
}

func (s *spyIndex) Upsert(_ context.Context, ids, documents []string, metas []models.ChunkMeta, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, upsertCall{ids: ids, docs: documents, metas: metas})
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(t *testing.T, ex TextExtractor, idx *spyIndex, opts Options) *Pipeline {
	t.Helper()
	p, err := NewPipeline(ex, fakeEmbedder{}, idx, opts, quietLogger())
	require.NoError(t, err)
	return p
}

func TestIngest_RejectsShortDocument(t *testing.T) {
	idx := &spyIndex{}
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("a", 200)}, idx, DefaultOptions())

	n, err := p.Ingest(context.Background(), "doc.pdf", models.PaperMeta{PaperID: "p1", Title: "Short"})
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, idx.calls)
}

func TestIngest_FlushesPartialFinalBatch(t *testing.T) {
	idx := &spyIndex{}
	opts := DefaultOptions()
	opts.ChunkSize = 10
	opts.ChunkOverlap = 0
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("abcdefghij", 150)}, idx, opts)

	year := 2021
	meta := models.PaperMeta{PaperID: "p1", Title: "Long", Year: &year, DOI: "10.1/x"}
	n, err := p.Ingest(context.Background(), "doc.pdf", meta)
	require.NoError(t, err)
	require.Equal(t, 150, n)

	require.Len(t, idx.calls, 3)
	require.Len(t, idx.calls[0].docs, 64)
	require.Len(t, idx.calls[1].docs, 64)
	require.Len(t, idx.calls[2].docs, 22)

	seen := map[string]bool{}
	next := 0
	for _, c := range idx.calls {
		for i, m := range c.metas {
			require.Equal(t, next, m.ChunkIndex)
			require.Equal(t, "p1", m.PaperID)
			require.Equal(t, "10.1/x", m.DOI)
			require.Equal(t, 2021, *m.Year)
			require.Equal(t, models.SourceOA, m.Source)
			require.False(t, seen[c.ids[i]], "duplicate id %s", c.ids[i])
			seen[c.ids[i]] = true
			next++
		}
	}
}

func TestIngest_ReingestCreatesNewIDs(t *testing.T) {
	idx := &spyIndex{}
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("x", 600)}, idx, DefaultOptions())
	meta := models.PaperMeta{PaperID: "p1", Title: "Same"}

	_, err := p.Ingest(context.Background(), "doc.pdf", meta)
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), "doc.pdf", meta)
	require.NoError(t, err)

	require.Len(t, idx.calls, 2)
	require.NotEqual(t, idx.calls[0].ids[0], idx.calls[1].ids[0])
}

func TestIngestKeyed_StableIDsAcrossAttempts(t *testing.T) {
	idx := &spyIndex{}
	opts := DefaultOptions()
	opts.ChunkSize = 100
	opts.ChunkOverlap = 0
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("y", 600)}, idx, opts)
	meta := models.PaperMeta{PaperID: "p1", Title: "Keyed"}

	_, err := p.IngestKeyed(context.Background(), "doc.pdf", meta, "run-7")
	require.NoError(t, err)
	_, err = p.IngestKeyed(context.Background(), "doc.pdf", meta, "run-7")
	require.NoError(t, err)

	require.Len(t, idx.calls, 2)
	require.Equal(t, idx.calls[0].ids, idx.calls[1].ids)
	require.Equal(t, ChunkID("run-7", "p1", 0), idx.calls[0].ids[0])
	require.NotEqual(t, ChunkID("run-8", "p1", 0), idx.calls[0].ids[0])

	seen := map[string]bool{}
	for _, id := range idx.calls[0].ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIngest_PropagatesUpsertError(t *testing.T) {
	boom := errors.New("index down")
	idx := &spyIndex{err: boom}
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("x", 600)}, idx, DefaultOptions())
	_, err := p.Ingest(context.Background(), "doc.pdf", models.PaperMeta{PaperID: "p1"})
	require.ErrorIs(t, err, boom)
}

func TestNewPipeline_RejectsInvalidChunkConfig(t *testing.T) {
	for _, overlap := range []int{1800, 2000} {
		opts := DefaultOptions()
		opts.ChunkOverlap = overlap
		_, err := NewPipeline(&fakeExtractor{}, fakeEmbedder{}, &spyIndex{}, opts, quietLogger())
		require.ErrorIs(t, err, util.ErrInvalidChunkConfig)
	}
}

func TestIngestURL_DownloadsAndRemovesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	tmpDir := t.TempDir()
	ex := &fakeExtractor{text: strings.Repeat("y", 800)}
	idx := &spyIndex{}
	opts := DefaultOptions()
	opts.TempDir = tmpDir
	p := newTestPipeline(t, ex, idx, opts)

	n, err := p.IngestURL(context.Background(), models.PaperMeta{PaperID: "PMC1", PDFURL: srv.URL + "/a.pdf", Source: models.SourcePMC})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "%PDF-1.4 fake", ex.gotBody)
	require.Equal(t, tmpDir, filepath.Dir(ex.gotPath))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIngestURL_HTTPErrorRemovesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tmpDir := t.TempDir()
	idx := &spyIndex{}
	opts := DefaultOptions()
	opts.TempDir = tmpDir
	p := newTestPipeline(t, &fakeExtractor{text: strings.Repeat("y", 800)}, idx, opts)

	_, err := p.IngestURL(context.Background(), models.PaperMeta{PaperID: "x", PDFURL: srv.URL})
	require.ErrorIs(t, err, util.ErrDownload)
	require.Empty(t, idx.calls)

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIngestURL_ExtractErrorRemovesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a pdf"))
	}))
	defer srv.Close()

	tmpDir := t.TempDir()
	opts := DefaultOptions()
	opts.TempDir = tmpDir
	p := newTestPipeline(t, &fakeExtractor{err: errors.New("malformed")}, &spyIndex{}, opts)

	_, err := p.IngestURL(context.Background(), models.PaperMeta{PaperID: "x", PDFURL: srv.URL})
	require.Error(t, err)
	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIngestURL_RequiresPDFURL(t *testing.T) {
	p := newTestPipeline(t, &fakeExtractor{}, &spyIndex{}, DefaultOptions())
	_, err := p.IngestURL(context.Background(), models.PaperMeta{PaperID: "x"})
	require.ErrorIs(t, err, util.ErrDownload)
}

func TestListPDFs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt", filepath.Join("sub", "c.pdf")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	flat, err := ListPDFs(dir, false)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.pdf")}, flat)

	deep, err := ListPDFs(dir, true)
	require.NoError(t, err)
	require.Len(t, deep, 3)

	_, err = ListPDFs(filepath.Join(dir, "missing"), false)
	require.Error(t, err)
}

func TestMetaHelpers(t *testing.T) {
	m := MetaForFile("/tmp/papers/who-growth.pdf", models.SourceCore, 2006)
	require.Equal(t, "who-growth.pdf", m.PaperID)
	require.Equal(t, "who-growth", m.Title)
	require.Equal(t, 2006, *m.Year)

	u := MetaForURL(models.PaperMeta{PDFURL: "https://x/y.pdf"})
	require.Equal(t, "https://x/y.pdf", u.PaperID)
	require.Equal(t, "Unknown title", u.Title)
	require.Equal(t, models.SourceOA, u.Source)
}
