package workflows

import (
	"errors"
	"time"

	"growthrag/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetProgress = "GetProgress"

var ErrNoPDFs = errors.New("no PDF files found")

func activityOptions(timeout time.Duration, attempts int32) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    attempts,
		},
	}
}

// FolderIngestWorkflow ingests every PDF under a folder. A file that fails is
// recorded in the summary and does not fail the run.
func FolderIngestWorkflow(ctx workflow.Context, input FolderIngestInput) (IngestSummary, error) {
	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	progress := IngestProgress{RunID: runID, PerFile: map[string]string{}}
	if err := workflow.SetQueryHandler(ctx, QueryGetProgress, func() (IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return IngestSummary{}, err
	}

	listCtx := workflow.WithActivityOptions(ctx, activityOptions(2*time.Minute, 3))
	var listOut activities.ListPDFsOutput
	if err := workflow.ExecuteActivity(listCtx, "ListPDFsActivity", activities.ListPDFsInput{
		InputDir:  input.InputDir,
		Recursive: input.Recursive,
	}).Get(listCtx, &listOut); err != nil {
		return IngestSummary{}, err
	}
	paths := listOut.Paths
	if len(paths) == 0 {
		return IngestSummary{}, temporal.NewNonRetryableApplicationError(ErrNoPDFs.Error()+" in "+input.InputDir, "NoPDFs", ErrNoPDFs)
	}
	progress.Total = len(paths)

	maxConcurrent := input.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	ingestCtx := workflow.WithActivityOptions(ctx, activityOptions(15*time.Minute, 2))
	results := make([]FileResult, len(paths))
	for i := 0; i < len(paths); i += maxConcurrent {
		end := min(i+maxConcurrent, len(paths))
		futures := make([]workflow.Future, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerFile[path] = "processing"
			futures = append(futures, workflow.ExecuteActivity(ingestCtx, "IngestFileActivity", activities.IngestFileInput{
				RunID:  runID,
				Path:   path,
				Source: input.Source,
				Year:   input.Year,
			}))
		}
		for j, f := range futures {
			path := paths[i+j]
			var out activities.IngestFileOutput
			res := FileResult{Path: path}
			if err := f.Get(ingestCtx, &out); err != nil {
				res.Error = err.Error()
				progress.Failed++
				progress.PerFile[path] = "failed"
				workflow.GetLogger(ctx).Warn("file ingest failed", "path", path, "error", err)
			} else {
				res.PaperID = out.PaperID
				res.Inserted = out.Inserted
				progress.Inserted += out.Inserted
				progress.PerFile[path] = "done"
			}
			progress.Done++
			results[i+j] = res
		}
	}

	summary := IngestSummary{
		RunID:       runID,
		InputDir:    input.InputDir,
		Total:       progress.Total,
		Failed:      progress.Failed,
		Inserted:    progress.Inserted,
		Files:       results,
		GeneratedAt: workflow.Now(ctx),
	}
	summary.SummaryPath = writeSummary(ctx, runID, summary)
	return summary, nil
}

// RemoteIngestWorkflow downloads and ingests a single remote PDF.
func RemoteIngestWorkflow(ctx workflow.Context, input RemoteIngestInput) (IngestSummary, error) {
	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	ingestCtx := workflow.WithActivityOptions(ctx, activityOptions(15*time.Minute, 3))
	var out activities.IngestURLOutput
	if err := workflow.ExecuteActivity(ingestCtx, "IngestURLActivity", activities.IngestURLInput{RunID: runID, Meta: input.Meta}).Get(ingestCtx, &out); err != nil {
		return IngestSummary{}, err
	}
	summary := IngestSummary{
		RunID:       runID,
		Total:       1,
		Inserted:    out.Inserted,
		Files:       []FileResult{{Path: out.Meta.PDFURL, PaperID: out.Meta.PaperID, Inserted: out.Inserted}},
		GeneratedAt: workflow.Now(ctx),
	}
	summary.SummaryPath = writeSummary(ctx, runID, summary)
	return summary, nil
}

// writeSummary is best effort; the run result does not depend on it.
func writeSummary(ctx workflow.Context, runID string, summary IngestSummary) string {
	sctx := workflow.WithActivityOptions(ctx, activityOptions(time.Minute, 3))
	var out activities.WriteIngestSummaryOutput
	if err := workflow.ExecuteActivity(sctx, "WriteIngestSummaryActivity", activities.WriteIngestSummaryInput{
		RunID:   runID,
		Summary: summary,
	}).Get(sctx, &out); err != nil {
		workflow.GetLogger(ctx).Warn("write ingest summary failed", "run_id", runID, "error", err)
		return ""
	}
	return out.Path
}
