package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"growthrag/internal/api"
	"growthrag/internal/app"
	"growthrag/internal/config"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	var deps api.Deps
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a, err := app.Build(ctx, cfg, logger)
	cancel()
	if err != nil {
		log.Printf("rag pipeline unavailable, serving without evidence: %v", err)
	} else {
		defer a.Close()
		deps.RAG = a.Orchestrator
		deps.Ingester = a.Pipeline
		deps.Index = a.Index
		if a.Vision != nil {
			deps.Vision = a.Vision
		}
	}

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Printf("temporal unavailable, async ingest disabled: %v", err)
	} else {
		defer tc.Close()
		deps.Temporal = tc
	}

	h := api.NewServer(cfg, deps, logger)
	log.Printf("growthrag api listening on %s index=%s llm_providers=%q embed_providers=%q", cfg.APIAddr, cfg.IndexBackend, cfg.LLMProviders, cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
