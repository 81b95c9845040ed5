package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"growthrag/internal/config"
	"growthrag/internal/hybrid"
	"growthrag/internal/ingest"
	"growthrag/internal/models"
	"growthrag/internal/util"
	"growthrag/internal/vision"
	"growthrag/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

// maxBodyBytes caps request bodies; consultations carry base64 photos.
const maxBodyBytes = 16 << 20

const notConnectedAnswer = "The evidence pipeline is not connected yet, so no evidence-based answer is available."

type Answerer interface {
	Answer(ctx context.Context, c models.Consultation) (hybrid.Result, error)
}

type VisionAnalyzer interface {
	Analyze(ctx context.Context, images []vision.Image) (*models.VisionFindings, error)
}

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type URLIngester interface {
	IngestURL(ctx context.Context, meta models.PaperMeta) (int, error)
}

// Deps are the collaborators behind the routes. A nil RAG reports the
// pipeline as not connected; nil Vision and Temporal disable those features.
type Deps struct {
	RAG      Answerer
	Vision   VisionAnalyzer
	Ingester URLIngester
	Index    Counter
	Temporal tclient.Client
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
}

type citation struct {
	RefID      string        `json:"ref_id"`
	PaperID    string        `json:"paper_id"`
	Title      string        `json:"title"`
	Year       *int          `json:"year,omitempty"`
	DOI        string        `json:"doi,omitempty"`
	Source     models.Source `json:"source,omitempty"`
	PDFURL     string        `json:"pdf_url,omitempty"`
	LandingURL string        `json:"landing_url,omitempty"`
	ChunkIndex int           `json:"chunk_index"`
	Distance   *float64      `json:"distance,omitempty"`
	Snippet    string        `json:"snippet"`
}

type processResponse struct {
	models.Consultation
	AnswerText   string     `json:"answer_text"`
	RAGCitations []citation `json:"rag_citations"`
	DidAutofetch bool       `json:"did_autofetch"`
}

type ingestRequest struct {
	PDFURL  string        `json:"pdf_url"`
	PaperID string        `json:"paper_id,omitempty"`
	Title   string        `json:"title,omitempty"`
	Year    *int          `json:"year,omitempty"`
	DOI     string        `json:"doi,omitempty"`
	Source  models.Source `json:"source,omitempty"`
	// Async hands the download to the worker when Temporal is configured.
	Async bool `json:"async,omitempty"`
}

func NewServer(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/consultations/process", s.handleProcess)
	mux.HandleFunc("/rag/ingest", s.handleIngest)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "rag_connected": s.deps.RAG != nil}
	if s.deps.Index != nil {
		n, err := s.deps.Index.Count(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		resp["chunks"] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var c models.Consultation
	if err := decodeBody(w, r, &c); err != nil {
		writeErr(w, decodeStatus(err), fmt.Errorf("invalid consultation: %w", err))
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	if c.VisionFindings == nil && len(c.Photos) > 0 && s.deps.Vision != nil {
		findings, err := s.deps.Vision.Analyze(r.Context(), vision.ImagesFromPhotos(c.Photos))
		if err != nil {
			s.logger.Warn("vision analysis failed", "consultation", c.ID, "error", err)
		} else {
			c.VisionFindings = findings
		}
	}

	if s.deps.RAG == nil {
		s.logger.Warn("consultation answered without evidence", "consultation", c.ID, "error", util.ErrNotConnected)
		writeJSON(w, http.StatusOK, processResponse{
			Consultation: c,
			AnswerText:   notConnectedAnswer,
			RAGCitations: []citation{},
		})
		return
	}

	res, err := s.deps.RAG.Answer(r.Context(), c)
	if err != nil {
		s.logger.Error("consultation failed", "consultation", c.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "failed to process consultation",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Consultation: c,
		AnswerText:   res.Answer,
		RAGCitations: citations(res.Hits, c.UserQuestion),
		DidAutofetch: res.DidAutofetch,
	})
}

func citations(hits []models.Hit, question string) []citation {
	out := make([]citation, 0, len(hits))
	for i, h := range hits {
		out = append(out, citation{
			RefID:      fmt.Sprintf("S%d", i+1),
			PaperID:    h.Meta.PaperID,
			Title:      h.Meta.Title,
			Year:       h.Meta.Year,
			DOI:        h.Meta.DOI,
			Source:     h.Meta.Source,
			PDFURL:     h.Meta.PDFURL,
			LandingURL: h.Meta.LandingURL,
			ChunkIndex: h.Meta.ChunkIndex,
			Distance:   h.Distance,
			Snippet:    util.EvidenceSnippet(h.Text, question, util.DefaultSnippetRunes),
		})
	}
	return out
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErr(w, decodeStatus(err), fmt.Errorf("invalid ingest request: %w", err))
		return
	}
	if strings.TrimSpace(req.PDFURL) == "" {
		writeErr(w, http.StatusBadRequest, errors.New("pdf_url is required"))
		return
	}
	meta := models.PaperMeta{
		PaperID: req.PaperID,
		Title:   req.Title,
		Year:    req.Year,
		DOI:     req.DOI,
		Source:  req.Source,
		PDFURL:  req.PDFURL,
	}

	if req.Async {
		s.startRemoteIngest(r.Context(), w, meta)
		return
	}
	if s.deps.Ingester == nil {
		writeErr(w, http.StatusServiceUnavailable, util.ErrNotConnected)
		return
	}
	meta = ingest.MetaForURL(meta)
	n, err := s.deps.Ingester.IngestURL(r.Context(), meta)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, util.ErrDownload) {
			code = http.StatusBadGateway
		}
		writeErr(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted_chunks": n, "paper_meta": meta})
}

func (s *Server) startRemoteIngest(ctx context.Context, w http.ResponseWriter, meta models.PaperMeta) {
	if s.deps.Temporal == nil {
		writeErr(w, http.StatusServiceUnavailable, errors.New("temporal is not configured"))
		return
	}
	runID := "remote-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	run, err := s.deps.Temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       runID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.RemoteIngestWorkflow, workflows.RemoteIngestInput{RunID: runID, Meta: meta})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": run.GetID(), "run_id": run.GetRunID()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func decodeStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
