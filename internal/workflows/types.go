package workflows

import (
	"time"

	"growthrag/internal/models"
)

type FolderIngestInput struct {
	RunID         string        `json:"run_id"`
	InputDir      string        `json:"input_dir"`
	Source        models.Source `json:"source"`
	Year          int           `json:"year,omitempty"`
	Recursive     bool          `json:"recursive"`
	MaxConcurrent int           `json:"max_concurrent"`
}

type RemoteIngestInput struct {
	RunID string           `json:"run_id"`
	Meta  models.PaperMeta `json:"paper_meta"`
}

type FileResult struct {
	Path     string `json:"path"`
	PaperID  string `json:"paper_id,omitempty"`
	Inserted int    `json:"inserted_chunks"`
	Error    string `json:"error,omitempty"`
}

type IngestProgress struct {
	RunID    string            `json:"run_id"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Failed   int               `json:"failed"`
	Inserted int               `json:"inserted_chunks"`
	PerFile  map[string]string `json:"per_file_status"`
}

type IngestSummary struct {
	RunID       string       `json:"run_id"`
	InputDir    string       `json:"input_dir,omitempty"`
	Total       int          `json:"total"`
	Failed      int          `json:"failed"`
	Inserted    int          `json:"inserted_chunks"`
	Files       []FileResult `json:"files"`
	GeneratedAt time.Time    `json:"generated_at"`
	SummaryPath string       `json:"summary_path,omitempty"`
}
