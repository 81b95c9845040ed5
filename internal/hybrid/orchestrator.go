// Package hybrid answers consultations from indexed literature, fetching new
// open-access papers when the local evidence is weak.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"growthrag/internal/gate"
	"growthrag/internal/lock"
	"growthrag/internal/models"
	"growthrag/internal/providers"
	"growthrag/internal/sources"
	"growthrag/internal/vector"
)

// ErrGeneration wraps failures of the chat completion call.
var ErrGeneration = errors.New("generation failed")

type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

type URLIngester interface {
	IngestURL(ctx context.Context, meta models.PaperMeta) (int, error)
}

type Generator interface {
	Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, providers.ProviderInfo, error)
}

type Options struct {
	K                int
	Thresholds       gate.Thresholds
	AutofetchEnabled bool
	PerSource        int
	MaxQueryChars    int
	MaxTokens        int
	LockTTL          time.Duration
}

func DefaultOptions() Options {
	return Options{
		K:                8,
		Thresholds:       gate.DefaultThresholds(),
		AutofetchEnabled: true,
		PerSource:        3,
		MaxQueryChars:    400,
		MaxTokens:        1000,
		LockTTL:          5 * time.Minute,
	}
}

type Deps struct {
	Embedder   QueryEmbedder
	Index      vector.Querier
	Connectors []sources.Connector
	Ingester   URLIngester
	Generator  Generator
	// Locker is optional.
	Locker lock.Locker
}

type Orchestrator struct {
	embedder   QueryEmbedder
	index      vector.Querier
	connectors []sources.Connector
	ingester   URLIngester
	generator  Generator
	locker     lock.Locker
	opts       Options
	logger     *slog.Logger
}

func New(d Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if d.Locker == nil {
		d.Locker = lock.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.K <= 0 {
		opts.K = 8
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Orchestrator{
		embedder:   d.Embedder,
		index:      d.Index,
		connectors: d.Connectors,
		ingester:   d.Ingester,
		generator:  d.Generator,
		locker:     d.Locker,
		opts:       opts,
		logger:     logger,
	}
}

type Result struct {
	Answer       string       `json:"answer"`
	Hits         []models.Hit `json:"hits"`
	DidAutofetch bool         `json:"did_autofetch"`
}

// Retrieve returns the k nearest chunks for query.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, k int) ([]models.Hit, error) {
	vec, err := o.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := o.index.Query(ctx, vec, k, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	return hits, nil
}

// Answer runs retrieve, gate, optional autofetch and grounded generation for c.
func (o *Orchestrator) Answer(ctx context.Context, c models.Consultation) (Result, error) {
	query := BuildQuery(c)
	hits, err := o.Retrieve(ctx, query, o.opts.K)
	if err != nil {
		return Result{}, err
	}

	didAutofetch := false
	if o.opts.AutofetchEnabled && gate.EvidenceIsWeak(hits, o.opts.Thresholds) {
		o.logger.Info("evidence weak, autofetching", "consultation", c.ID, "hits", len(hits))
		if af := o.Autofetch(ctx, query); af.Inserted > 0 {
			refreshed, err := o.Retrieve(ctx, query, o.opts.K)
			if err != nil {
				return Result{}, err
			}
			hits = refreshed
			didAutofetch = true
		}
	}

	evidence := BuildContext(hits)
	if strings.TrimSpace(evidence) == "" {
		return Result{Answer: EmptyContextAnswer, Hits: hits, DidAutofetch: didAutofetch}, nil
	}

	resp, info, err := o.generator.Chat(ctx, providers.ChatRequest{
		Operation: "answer",
		Messages: []providers.ChatMessage{
			{Role: "system", Text: systemPrompt},
			{Role: "user", Text: buildUserPrompt(c, evidence)},
		},
		MaxTokens: o.opts.MaxTokens,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	o.logger.Info("answer generated", "consultation", c.ID, "provider", info.Name, "model", info.Model,
		"hits", len(hits), "did_autofetch", didAutofetch)

	answer := resp.Text
	if list := FormatSources(hits); list != "" {
		answer = answer + "\n\n" + sourcesHeading + "\n" + list
	}
	return Result{Answer: answer, Hits: hits, DidAutofetch: didAutofetch}, nil
}
