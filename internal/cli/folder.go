package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"growthrag/internal/ingest"
	"growthrag/internal/models"
	"growthrag/internal/workflows"
)

type folderFlags struct {
	folder    string
	source    string
	year      int
	recursive bool
	temporal  bool
}

func newFolderCmd(rt Runtime) *cobra.Command {
	var f folderFlags
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Ingest every PDF in a local folder",
		Long: `Ingests each PDF under --folder. The paper id is the file name and the
title is the file name without its extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFolder(cmd, rt, f)
		},
	}
	cmd.Flags().StringVar(&f.folder, "folder", "", "folder containing PDF files")
	cmd.Flags().StringVar(&f.source, "source", string(models.SourceCore), "source label stored with each chunk")
	cmd.Flags().IntVar(&f.year, "year", 0, "publication year stored with each chunk")
	cmd.Flags().BoolVar(&f.recursive, "recursive", false, "descend into subfolders")
	cmd.Flags().BoolVar(&f.temporal, "temporal", false, "run as a FolderIngestWorkflow on the worker")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

func runFolder(cmd *cobra.Command, rt Runtime, f folderFlags) error {
	info, err := os.Stat(f.folder)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("folder not found: %s", f.folder)
	}
	paths, err := ingest.ListPDFs(f.folder, f.recursive)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %s", f.folder)
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if f.temporal {
		summary, err := startAndWait(ctx, rt, "folder-", workflows.FolderIngestWorkflow, func(runID string) any {
			return workflows.FolderIngestInput{
				RunID:     runID,
				InputDir:  f.folder,
				Source:    models.Source(f.source),
				Year:      f.year,
				Recursive: f.recursive,
			}
		})
		if err != nil {
			return err
		}
		return printSummary(cmd, summary)
	}

	p, closeFn, err := rt.Pipeline(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	total, failed := 0, 0
	for _, path := range paths {
		meta := ingest.MetaForFile(path, models.Source(f.source), f.year)
		n, err := p.Ingest(ctx, path, meta)
		if err != nil {
			failed++
			fmt.Fprintf(out, "[FAIL] %s: %v\n", filepath.Base(path), err)
			continue
		}
		total += n
		fmt.Fprintf(out, "[OK] %s: inserted_chunks=%d\n", filepath.Base(path), n)
	}
	fmt.Fprintf(out, "DONE. Total inserted_chunks=%d\n", total)
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
	}
	return nil
}

func printSummary(cmd *cobra.Command, s workflows.IngestSummary) error {
	out := cmd.OutOrStdout()
	for _, r := range s.Files {
		if r.Error != "" {
			fmt.Fprintf(out, "[FAIL] %s: %s\n", filepath.Base(r.Path), r.Error)
			continue
		}
		fmt.Fprintf(out, "[OK] %s: inserted_chunks=%d\n", filepath.Base(r.Path), r.Inserted)
	}
	fmt.Fprintf(out, "DONE. Total inserted_chunks=%d\n", s.Inserted)
	if s.SummaryPath != "" {
		fmt.Fprintf(out, "summary: %s\n", s.SummaryPath)
	}
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", s.Failed, s.Total)
	}
	return nil
}

func startAndWait(ctx context.Context, rt Runtime, prefix string, wf any, input func(runID string) any) (workflows.IngestSummary, error) {
	if rt.Temporal == nil {
		return workflows.IngestSummary{}, errors.New("temporal is not configured")
	}
	tc, err := rt.Temporal()
	if err != nil {
		return workflows.IngestSummary{}, fmt.Errorf("dial temporal: %w", err)
	}
	defer tc.Close()

	runID := prefix + time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
	run, err := tc.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       runID,
		TaskQueue:                                rt.Cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, wf, input(runID))
	if err != nil {
		return workflows.IngestSummary{}, err
	}
	var summary workflows.IngestSummary
	if err := run.Get(ctx, &summary); err != nil {
		return workflows.IngestSummary{}, err
	}
	return summary, nil
}
