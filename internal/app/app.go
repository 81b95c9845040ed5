// Package app wires configuration into the ingestion and answering services.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"growthrag/internal/config"
	"growthrag/internal/embedding"
	"growthrag/internal/extract"
	"growthrag/internal/gate"
	"growthrag/internal/hybrid"
	"growthrag/internal/ingest"
	"growthrag/internal/lock"
	"growthrag/internal/providers"
	"growthrag/internal/sources"
	"growthrag/internal/vector"
	"growthrag/internal/vision"
)

type App struct {
	Cfg          config.Config
	Providers    *providers.Manager
	Embedder     *embedding.Service
	Index        vector.Index
	Pipeline     *ingest.Pipeline
	Orchestrator *hybrid.Orchestrator
	// Vision is nil when disabled.
	Vision *vision.Analyzer

	closers []func()
}

func IngestOptions(cfg config.Config) ingest.Options {
	opts := ingest.DefaultOptions()
	opts.ChunkSize = cfg.ChunkSize
	opts.ChunkOverlap = cfg.ChunkOverlap
	opts.BatchSize = cfg.IngestBatchSize
	opts.MinTextChars = cfg.MinTextChars
	opts.TempDir = filepath.Join(cfg.DataOutRoot, "tmp")
	return opts
}

func HybridOptions(cfg config.Config) hybrid.Options {
	opts := hybrid.DefaultOptions()
	opts.K = cfg.RetrievalK
	opts.Thresholds = gate.Thresholds{
		MinHits:         cfg.GateMinHits,
		DistThreshold:   cfg.GateDistThreshold,
		MinUniquePapers: cfg.GateMinUniquePapers,
	}
	opts.AutofetchEnabled = cfg.AutofetchEnabled
	opts.PerSource = cfg.AutofetchPerSource
	opts.MaxQueryChars = cfg.AutofetchMaxQueryChars
	opts.MaxTokens = cfg.MaxTokens
	return opts
}

// Build opens the index and constructs every service. Close releases what it
// opened.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Cfg: cfg}

	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	a.Providers = pm.WithLogger(logger)
	a.Embedder = embedding.FromManager(a.Providers, cfg.EmbedDim, cfg.EmbedBatchSize).WithLogger(logger)

	idx, closeIdx, err := vector.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	a.Index = idx
	a.closers = append(a.closers, closeIdx)

	extractor := extract.NewExtractor(cfg.PDFMaxPages, cfg.PDFMaxChars, logger)
	a.Pipeline, err = ingest.NewPipeline(extractor, a.Embedder, idx, IngestOptions(cfg), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	connectors, err := sources.FromConfig(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.Noop{}
	if cfg.RedisURL != "" {
		rl, err := lock.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, autofetch runs unlocked", "error", err)
		} else {
			locker = rl
			a.closers = append(a.closers, func() { _ = rl.Close() })
		}
	}

	a.Orchestrator = hybrid.New(hybrid.Deps{
		Embedder:   a.Embedder,
		Index:      idx,
		Connectors: connectors,
		Ingester:   a.Pipeline,
		Generator:  a.Providers,
		Locker:     locker,
	}, HybridOptions(cfg), logger)

	if cfg.VisionEnabled {
		a.Vision = vision.NewAnalyzer(a.Providers, logger)
	}
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
