package sources

import (
	"fmt"
	"log/slog"

	"growthrag/internal/config"
	"growthrag/internal/models"
)

// FromConfig builds the autofetch connectors named in cfg.AutofetchSources, in order.
func FromConfig(cfg config.Config, logger *slog.Logger) ([]Connector, error) {
	out := make([]Connector, 0, 3)
	for _, name := range cfg.SourceList() {
		switch models.Source(name) {
		case models.SourcePMC:
			out = append(out, NewPMC(cfg.NCBIAPIKey, cfg.NCBIEmail, logger))
		case models.SourceSemanticScholar:
			out = append(out, NewSemanticScholar(cfg.S2APIKey))
		case models.SourceOpenAlex:
			out = append(out, NewOpenAlex(cfg.OpenAlexMailto))
		default:
			return nil, fmt.Errorf("unsupported autofetch source: %s", name)
		}
	}
	return out, nil
}
