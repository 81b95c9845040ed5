package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"growthrag/internal/models"
)

const eutilsBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// PMC queries PubMed Central through the NCBI E-utilities.
type PMC struct {
	baseURL     string
	apiKey      string
	email       string
	client      *http.Client
	limiter     *rate.Limiter
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger
}

func NewPMC(apiKey, email string, logger *slog.Logger) *PMC {
	if logger == nil {
		logger = slog.Default()
	}
	// NCBI allows 3 requests/second without a key and 10 with one.
	perSecond := rate.Limit(3)
	if apiKey != "" {
		perSecond = 10
	}
	return &PMC{
		baseURL:     eutilsBaseURL,
		apiKey:      apiKey,
		email:       email,
		client:      &http.Client{Timeout: apiTimeout},
		limiter:     rate.NewLimiter(perSecond, 1),
		attempts:    3,
		backoffBase: time.Second,
		backoffMax:  8 * time.Second,
		logger:      logger,
	}
}

func (p *PMC) Name() models.Source { return models.SourcePMC }

func (p *PMC) Search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{
		"db":      {"pmc"},
		"term":    {query},
		"retmode": {"json"},
		"retmax":  {strconv.Itoa(limit)},
	}
	var resp struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := p.getWithRetry(ctx, "/esearch.fcgi", params, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.ESearchResult.IDList))
	for _, id := range resp.ESearchResult.IDList {
		ids = append(ids, "PMC"+id)
	}
	return ids, nil
}

type pmcSummary struct {
	Title      string `json:"title"`
	PubDate    string `json:"pubdate"`
	ArticleIDs []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

func (p *PMC) FetchSummary(ctx context.Context, ids []string) ([]models.PaperMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	numeric := make([]string, len(ids))
	for i, id := range ids {
		numeric[i] = strings.TrimPrefix(id, "PMC")
	}
	params := url.Values{
		"db":      {"pmc"},
		"id":      {strings.Join(numeric, ",")},
		"retmode": {"json"},
	}
	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := p.getWithRetry(ctx, "/esummary.fcgi", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.PaperMeta, 0, len(numeric))
	for _, nid := range numeric {
		raw, ok := resp.Result[nid]
		if !ok {
			continue
		}
		var item pmcSummary
		if err := json.Unmarshal(raw, &item); err != nil {
			p.logger.Warn("skipping malformed pmc summary", "id", nid, "err", err)
			continue
		}
		meta := models.PaperMeta{
			PaperID:    "PMC" + nid,
			Title:      item.Title,
			Source:     models.SourcePMC,
			LandingURL: fmt.Sprintf("https://pmc.ncbi.nlm.nih.gov/articles/PMC%s/", nid),
			PDFURL:     fmt.Sprintf("https://pmc.ncbi.nlm.nih.gov/articles/PMC%s/pdf/", nid),
		}
		if meta.Title == "" {
			meta.Title = "Untitled"
		}
		if y := yearRe.FindString(item.PubDate); y != "" {
			n, _ := strconv.Atoi(y)
			meta.Year = intPtr(n)
		}
		for _, aid := range item.ArticleIDs {
			if strings.EqualFold(aid.IDType, "doi") && aid.Value != "" {
				meta.DOI = aid.Value
				break
			}
		}
		out = append(out, meta)
	}
	return out, nil
}

// getWithRetry retries any non-context failure with capped exponential backoff.
func (p *PMC) getWithRetry(ctx context.Context, path string, params url.Values, out any) error {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
		params.Set("tool", "growthrag")
	}
	u := p.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			wait := p.backoffBase << (attempt - 1)
			if wait > p.backoffMax {
				wait = p.backoffMax
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = getJSON(ctx, p.client, u, nil, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("pmc request failed", "path", path, "attempt", attempt+1, "err", lastErr)
	}
	return fmt.Errorf("pmc %s after %d attempts: %w", path, p.attempts, lastErr)
}
