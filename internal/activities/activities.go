package activities

import (
	"context"
	"fmt"
	"path/filepath"

	"go.temporal.io/sdk/activity"

	"growthrag/internal/config"
	"growthrag/internal/ingest"
	"growthrag/internal/models"
	"growthrag/internal/util"
)

type Ingester interface {
	IngestKeyed(ctx context.Context, path string, meta models.PaperMeta, key string) (int, error)
	IngestURLKeyed(ctx context.Context, meta models.PaperMeta, key string) (int, error)
}

type Activities struct {
	cfg      config.Config
	pipeline Ingester
}

func New(cfg config.Config, pipeline Ingester) *Activities {
	return &Activities{cfg: cfg, pipeline: pipeline}
}

func (a *Activities) ListPDFsActivity(_ context.Context, in ListPDFsInput) (ListPDFsOutput, error) {
	paths, err := ingest.ListPDFs(in.InputDir, in.Recursive)
	if err != nil {
		return ListPDFsOutput{}, err
	}
	return ListPDFsOutput{Paths: paths}, nil
}

func (a *Activities) IngestFileActivity(ctx context.Context, in IngestFileInput) (IngestFileOutput, error) {
	source := in.Source
	if source == "" {
		source = models.SourceCore
	}
	meta := ingest.MetaForFile(in.Path, source, in.Year)
	activity.GetLogger(ctx).Info("ingesting file", "path", in.Path, "paper_id", meta.PaperID)
	n, err := a.pipeline.IngestKeyed(ctx, in.Path, meta, ingestKey(ctx, in.RunID))
	if err != nil {
		return IngestFileOutput{PaperID: meta.PaperID}, fmt.Errorf("ingest %s: %w", filepath.Base(in.Path), err)
	}
	return IngestFileOutput{PaperID: meta.PaperID, Inserted: n}, nil
}

func (a *Activities) IngestURLActivity(ctx context.Context, in IngestURLInput) (IngestURLOutput, error) {
	meta := ingest.MetaForURL(in.Meta)
	activity.GetLogger(ctx).Info("ingesting remote pdf", "pdf_url", meta.PDFURL, "paper_id", meta.PaperID)
	n, err := a.pipeline.IngestURLKeyed(ctx, meta, ingestKey(ctx, in.RunID))
	if err != nil {
		return IngestURLOutput{Meta: meta}, err
	}
	return IngestURLOutput{Meta: meta, Inserted: n}, nil
}

// ingestKey is stable across retries of the same workflow run.
func ingestKey(ctx context.Context, runID string) string {
	if runID != "" {
		return runID
	}
	return activity.GetInfo(ctx).WorkflowExecution.ID
}

func (a *Activities) WriteIngestSummaryActivity(_ context.Context, in WriteIngestSummaryInput) (WriteIngestSummaryOutput, error) {
	path := filepath.Join(a.cfg.DataOutRoot, "ingest", in.RunID, "summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteIngestSummaryOutput{}, err
	}
	return WriteIngestSummaryOutput{Path: path}, nil
}
