package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"growthrag/internal/app"
	"growthrag/internal/cli"
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
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root := cli.NewRootCmd(cli.Runtime{
		Cfg: cfg,
		Pipeline: func(ctx context.Context) (cli.Ingester, func(), error) {
			a, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return a.Pipeline, a.Close, nil
		},
		Temporal: func() (tclient.Client, error) {
			return tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
