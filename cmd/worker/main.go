package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"growthrag/internal/activities"
	"growthrag/internal/app"
	"growthrag/internal/config"
	"growthrag/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a, err := app.Build(ctx, cfg, slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, a.Pipeline))

	log.Printf("growthrag worker listening on %s queue=%s index=%s embed_providers=%q", cfg.TemporalAddress, cfg.TemporalTaskQueue, cfg.IndexBackend, cfg.EmbedProviders)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(err)
	}
}
