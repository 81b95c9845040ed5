package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"growthrag/internal/models"
)

const s2BaseURL = "https://api.semanticscholar.org/graph/v1"

// SemanticScholar queries the Semantic Scholar Graph API.
type SemanticScholar struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewSemanticScholar(apiKey string) *SemanticScholar {
	return &SemanticScholar{baseURL: s2BaseURL, apiKey: apiKey, client: &http.Client{Timeout: apiTimeout}}
}

func (s *SemanticScholar) Name() models.Source { return models.SourceSemanticScholar }

func (s *SemanticScholar) header() http.Header {
	h := http.Header{}
	if s.apiKey != "" {
		h.Set("x-api-key", s.apiKey)
	}
	return h
}

func (s *SemanticScholar) Search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{
		"query":  {query},
		"limit":  {strconv.Itoa(limit)},
		"fields": {"paperId,title,year,openAccessPdf,url"},
	}
	var resp struct {
		Data []struct {
			PaperID string `json:"paperId"`
		} `json:"data"`
	}
	if err := getJSON(ctx, s.client, s.baseURL+"/paper/search?"+params.Encode(), s.header(), &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.PaperID != "" {
			ids = append(ids, p.PaperID)
		}
	}
	return ids, nil
}

type s2Paper struct {
	PaperID     string `json:"paperId"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	URL         string `json:"url"`
	ExternalIDs struct {
		DOI string `json:"DOI"`
	} `json:"externalIds"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (s *SemanticScholar) FetchSummary(ctx context.Context, ids []string) ([]models.PaperMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("encode batch request: %w", err)
	}
	params := url.Values{"fields": {"paperId,title,year,externalIds,openAccessPdf,url"}}
	// The batch endpoint only accepts ids as a POST body, not as a query string.
	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/paper/batch?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = s.header()
	req.Header.Set("Content-Type", "application/json")

	var papers []*s2Paper
	if err := doJSON(ctx, s.client, req, &papers); err != nil {
		return nil, err
	}
	out := make([]models.PaperMeta, 0, len(papers))
	for _, p := range papers {
		if p == nil || p.OpenAccessPDF == nil || p.OpenAccessPDF.URL == "" {
			continue
		}
		title := p.Title
		if title == "" {
			title = "Untitled"
		}
		out = append(out, models.PaperMeta{
			PaperID:    p.PaperID,
			Title:      title,
			Year:       intPtr(p.Year),
			DOI:        p.ExternalIDs.DOI,
			Source:     models.SourceSemanticScholar,
			PDFURL:     p.OpenAccessPDF.URL,
			LandingURL: p.URL,
		})
	}
	return out, nil
}
