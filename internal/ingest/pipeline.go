package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"growthrag/internal/models"
	"growthrag/internal/util"
	"growthrag/internal/vector"
)

type TextExtractor interface {
	Extract(path string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	ChunkSize       int
	ChunkOverlap    int
	BatchSize       int
	MinTextChars    int
	DownloadTimeout time.Duration
	// TempDir holds downloaded PDFs; empty means the OS default.
	TempDir string
}

func DefaultOptions() Options {
	return Options{
		ChunkSize:       1800,
		ChunkOverlap:    200,
		BatchSize:       64,
		MinTextChars:    500,
		DownloadTimeout: 60 * time.Second,
	}
}

// Pipeline runs extract, chunk, embed and upsert for one document at a time.
type Pipeline struct {
	extractor TextExtractor
	embedder  Embedder
	index     vector.Writer
	opts      Options
	client    *http.Client
	newID     func() string
	logger    *slog.Logger
}

func NewPipeline(extractor TextExtractor, embedder Embedder, index vector.Writer, opts Options, logger *slog.Logger) (*Pipeline, error) {
	if opts.ChunkSize <= 0 || opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: max_chars=%d overlap=%d", util.ErrInvalidChunkConfig, opts.ChunkSize, opts.ChunkOverlap)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		opts:      opts,
		client:    &http.Client{Timeout: opts.DownloadTimeout},
		newID:     func() string { return uuid.NewString() },
		logger:    logger,
	}, nil
}

// chunkNamespace scopes the deterministic chunk ids produced by keyed ingests.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("growthrag/chunk"))

// ChunkID derives a stable id for one chunk of a keyed ingest, so a retried
// ingest overwrites the chunks a failed attempt already wrote.
func ChunkID(key, paperID string, chunkIndex int) string {
	name := fmt.Sprintf("%s|%s|%d", key, paperID, chunkIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Ingest indexes the PDF at path and returns the number of chunks inserted.
// Documents shorter than MinTextChars are skipped without touching the index.
func (p *Pipeline) Ingest(ctx context.Context, path string, meta models.PaperMeta) (int, error) {
	return p.IngestKeyed(ctx, path, meta, "")
}

// IngestKeyed is Ingest with chunk ids derived from key, paper id and chunk
// index. An empty key falls back to random ids.
func (p *Pipeline) IngestKeyed(ctx context.Context, path string, meta models.PaperMeta, key string) (int, error) {
	if meta.Source == "" {
		meta.Source = models.SourceOA
	}
	p.logger.Info("ingest start", "title", meta.Title, "path", path)

	text, err := p.extractor.Extract(path)
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", path, err)
	}
	if n := utf8.RuneCountInString(text); n < p.opts.MinTextChars {
		p.logger.Warn("text too short, skipping pdf", "title", meta.Title, "chars", n)
		return 0, nil
	}
	chunks, err := util.ChunkSeq(text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		return 0, err
	}

	total := 0
	var (
		ids   []string
		docs  []string
		metas []models.ChunkMeta
	)
	flush := func() error {
		if len(docs) == 0 {
			return nil
		}
		vecs, err := p.embedder.Embed(ctx, docs)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if err := p.index.Upsert(ctx, ids, docs, metas, vecs); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
		total += len(docs)
		p.logger.Info("embedded and upserted batch", "title", meta.Title, "batch", len(docs), "total", total)
		ids, docs, metas = nil, nil, nil
		return nil
	}

	idx := 0
	for chunk := range chunks {
		id := p.newID()
		if key != "" {
			id = ChunkID(key, meta.PaperID, idx)
		}
		ids = append(ids, id)
		docs = append(docs, chunk)
		metas = append(metas, models.ChunkMeta{PaperMeta: meta, ChunkIndex: idx})
		idx++
		if len(docs) >= p.opts.BatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	p.logger.Info("pdf ingested", "title", meta.Title, "chunks", total)
	return total, nil
}

// IngestURL downloads meta.PDFURL to a temporary file, ingests it and removes the file.
func (p *Pipeline) IngestURL(ctx context.Context, meta models.PaperMeta) (int, error) {
	return p.IngestURLKeyed(ctx, meta, "")
}

// IngestURLKeyed is IngestURL with the chunk id scheme of IngestKeyed.
func (p *Pipeline) IngestURLKeyed(ctx context.Context, meta models.PaperMeta, key string) (int, error) {
	if strings.TrimSpace(meta.PDFURL) == "" {
		return 0, fmt.Errorf("%w: paper %q has no pdf_url", util.ErrDownload, meta.PaperID)
	}
	if p.opts.TempDir != "" {
		if err := util.EnsureDir(p.opts.TempDir); err != nil {
			return 0, fmt.Errorf("create temp dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(p.opts.TempDir, "growthrag-*.pdf")
	if err != nil {
		return 0, fmt.Errorf("create temp pdf: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = p.download(ctx, meta.PDFURL, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close temp pdf: %w", cerr)
	}
	if err != nil {
		return 0, err
	}
	return p.IngestKeyed(ctx, tmp.Name(), meta, key)
}

func (p *Pipeline) download(ctx context.Context, url string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.DownloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", util.ErrDownload, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned status %d", util.ErrDownload, url, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: read body: %v", util.ErrDownload, err)
	}
	return nil
}

// ListPDFs returns the sorted PDF paths under dir.
func ListPDFs(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("read input dir: %s is not a directory", dir)
	}
	isPDF := func(name string) bool { return strings.HasSuffix(strings.ToLower(name), ".pdf") }

	paths := make([]string, 0)
	if recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isPDF(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk input dir: %w", err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read input dir: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && isPDF(e.Name()) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// MetaForFile derives paper metadata for a local PDF: the id is the file name and
// the title is the file name without its extension.
func MetaForFile(path string, source models.Source, year int) models.PaperMeta {
	name := filepath.Base(path)
	meta := models.PaperMeta{
		PaperID: name,
		Title:   strings.TrimSuffix(name, filepath.Ext(name)),
		Source:  source,
	}
	if year > 0 {
		y := year
		meta.Year = &y
	}
	return meta
}

// MetaForURL fills the defaults used for a manually submitted PDF url.
func MetaForURL(meta models.PaperMeta) models.PaperMeta {
	if meta.PaperID == "" {
		meta.PaperID = meta.PDFURL
	}
	if meta.Title == "" {
		meta.Title = "Unknown title"
	}
	if meta.Source == "" {
		meta.Source = models.SourceOA
	}
	return meta
}
