package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"growthrag/internal/models"
)

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlex queries the OpenAlex Works API for open-access works.
type OpenAlex struct {
	baseURL string
	mailto  string
	client  *http.Client
}

func NewOpenAlex(mailto string) *OpenAlex {
	return &OpenAlex{baseURL: openAlexBaseURL, mailto: mailto, client: &http.Client{Timeout: apiTimeout}}
}

func (o *OpenAlex) Name() models.Source { return models.SourceOpenAlex }

type openAlexWork struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PublicationYear int    `json:"publication_year"`
	DOI             string `json:"doi"`
	PrimaryLocation *struct {
		LandingPageURL string `json:"landing_page_url"`
	} `json:"primary_location"`
	BestOALocation *struct {
		PDFURL string `json:"pdf_url"`
	} `json:"best_oa_location"`
}

func (o *OpenAlex) works(ctx context.Context, params url.Values) ([]openAlexWork, error) {
	if o.mailto != "" {
		params.Set("mailto", o.mailto)
	}
	var resp struct {
		Results []openAlexWork `json:"results"`
	}
	if err := getJSON(ctx, o.client, o.baseURL+"/works?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Search returns short work ids such as W2741809807.
func (o *OpenAlex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	results, err := o.works(ctx, url.Values{
		"search":   {query},
		"per_page": {strconv.Itoa(limit)},
		"filter":   {"is_oa:true"},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, w := range results {
		if id := shortWorkID(w.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (o *OpenAlex) FetchSummary(ctx context.Context, ids []string) ([]models.PaperMeta, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	short := make([]string, 0, len(ids))
	for _, id := range ids {
		short = append(short, shortWorkID(id))
	}
	results, err := o.works(ctx, url.Values{
		"filter":   {"openalex:" + strings.Join(short, "|")},
		"per_page": {strconv.Itoa(len(short))},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.PaperMeta, 0, len(results))
	for _, w := range results {
		if w.BestOALocation == nil || w.BestOALocation.PDFURL == "" {
			continue
		}
		title := w.Title
		if title == "" {
			title = "Untitled"
		}
		meta := models.PaperMeta{
			PaperID: w.ID,
			Title:   title,
			Year:    intPtr(w.PublicationYear),
			DOI:     w.DOI,
			Source:  models.SourceOpenAlex,
			PDFURL:  w.BestOALocation.PDFURL,
		}
		if w.PrimaryLocation != nil {
			meta.LandingURL = w.PrimaryLocation.LandingPageURL
		}
		out = append(out, meta)
	}
	return out, nil
}

func shortWorkID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return id
}
