package activities

import "growthrag/internal/models"

type ListPDFsInput struct {
	InputDir  string `json:"input_dir"`
	Recursive bool   `json:"recursive"`
}

type ListPDFsOutput struct {
	Paths []string `json:"paths"`
}

// RunID keys the chunk ids so a retried attempt overwrites its own partial writes.
type IngestFileInput struct {
	RunID  string        `json:"run_id,omitempty"`
	Path   string        `json:"path"`
	Source models.Source `json:"source"`
	Year   int           `json:"year,omitempty"`
}

type IngestFileOutput struct {
	PaperID  string `json:"paper_id"`
	Inserted int    `json:"inserted_chunks"`
}

type IngestURLInput struct {
	RunID string           `json:"run_id,omitempty"`
	Meta  models.PaperMeta `json:"paper_meta"`
}

type IngestURLOutput struct {
	Meta     models.PaperMeta `json:"paper_meta"`
	Inserted int              `json:"inserted_chunks"`
}

type WriteIngestSummaryInput struct {
	RunID   string `json:"run_id"`
	Summary any    `json:"summary"`
}

type WriteIngestSummaryOutput struct {
	Path string `json:"path"`
}
