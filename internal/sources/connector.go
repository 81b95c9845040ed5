package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"growthrag/internal/models"
)

const apiTimeout = 30 * time.Second

// Connector searches one literature API and resolves open-access PDF candidates.
type Connector interface {
	Name() models.Source
	Search(ctx context.Context, query string, limit int) ([]string, error)
	// FetchSummary drops candidates without a PDF url.
	FetchSummary(ctx context.Context, ids []string) ([]models.PaperMeta, error)
}

// Batch is the outcome of one connector's search and summary calls.
// A non-nil Failure means the connector contributed no candidates.
type Batch struct {
	Source  models.Source
	Metas   []models.PaperMeta
	Failure error
}

// Collect runs Search then FetchSummary and never returns an error directly.
func Collect(ctx context.Context, c Connector, query string, limit int) Batch {
	b := Batch{Source: c.Name()}
	ids, err := c.Search(ctx, query, limit)
	if err != nil {
		b.Failure = fmt.Errorf("%s search: %w", c.Name(), err)
		return b
	}
	if len(ids) == 0 {
		return b
	}
	metas, err := c.FetchSummary(ctx, ids)
	if err != nil {
		b.Failure = fmt.Errorf("%s fetch summary: %w", c.Name(), err)
		return b
	}
	b.Metas = metas
	return b
}

// HTTPError is a non-2xx answer from a literature API.
type HTTPError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func doJSON(ctx context.Context, client *http.Client, req *http.Request, out any) error {
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Method: req.Method, URL: req.URL.Redacted(), Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return doJSON(ctx, client, req, out)
}

func intPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
