// Package cli implements the manual ingestion commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"

	"growthrag/internal/config"
	"growthrag/internal/models"
)

type Ingester interface {
	Ingest(ctx context.Context, path string, meta models.PaperMeta) (int, error)
	IngestURL(ctx context.Context, meta models.PaperMeta) (int, error)
}

// Runtime supplies the commands' collaborators lazily so argument errors are
// reported before any index or Temporal connection is opened.
type Runtime struct {
	Cfg      config.Config
	Pipeline func(ctx context.Context) (Ingester, func(), error)
	Temporal func() (tclient.Client, error)
}

func NewRootCmd(rt Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Ingest PDFs into the evidence index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newFolderCmd(rt), newURLCmd(rt))
	return root
}
