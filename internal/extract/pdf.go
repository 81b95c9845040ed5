package extract

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"growthrag/internal/util"
)

// Extractor converts PDFs into cleaned plain text within page and character caps.
type Extractor struct {
	MaxPages int
	MaxChars int
	logger   *slog.Logger
}

func NewExtractor(maxPages, maxChars int, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{MaxPages: maxPages, MaxChars: maxChars, logger: logger}
}

// pageSource yields the plain text of 1-based pages.
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error)
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int { return p.r.NumPage() }

func (p pdfPages) PageText(i int) (string, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Extract returns the document text, or "" when it has no text layer.
func (e *Extractor) Extract(path string) (string, error) {
	e.logger.Info("reading pdf", "path", path)
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	text := e.extractPages(pdfPages{r: r})
	e.logger.Info("pdf extraction finished", "path", path, "chars", utf8.RuneCountInString(text))
	return text, nil
}

func (e *Extractor) extractPages(src pageSource) string {
	pages := src.NumPage()
	if e.MaxPages > 0 && pages > e.MaxPages {
		pages = e.MaxPages
	}
	parts := make([]string, 0, pages)
	total := 0
	for i := 1; i <= pages; i++ {
		txt, err := src.PageText(i)
		if err != nil {
			e.logger.Warn("skipping unreadable pdf page", "page", i, "err", err)
			continue
		}
		txt = util.CollapseBlankLines(util.SanitizeText(txt))
		if strings.TrimSpace(txt) == "" {
			continue
		}
		parts = append(parts, txt)
		total += utf8.RuneCountInString(txt)
		if i%5 == 0 {
			e.logger.Info("extracted pdf page", "page", i, "chars", total)
		}
		if e.MaxChars > 0 && total >= e.MaxChars {
			e.logger.Warn("reached max chars, stopping extraction", "max_chars", e.MaxChars)
			break
		}
	}
	return util.CollapseBlankLines(strings.TrimSpace(strings.Join(parts, "\n")))
}
