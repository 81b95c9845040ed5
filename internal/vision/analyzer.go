// Package vision turns child photos into structured, non-diagnostic findings.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"growthrag/internal/models"
	"growthrag/internal/providers"
)

const (
	maxImageBytes = 3_000_000
	maxTokens     = 600
)

const visionPrompt = "You are a child nutrition consultation assistant. " +
	"Analyse the images using only clearly visible observations, without medical diagnosis. " +
	"Focus on nutrition, growth or eating patterns when visible. " +
	"Output valid JSON with the structure:\n" +
	`{"summary": string, "observations": [string], "possible_concerns": [string], ` +
	`"red_flags": [string], "confidence": "low"|"medium"|"high"}`

type Image struct {
	URL     string
	Context string
}

// ImagesFromPhotos keeps photos that carry a url.
func ImagesFromPhotos(photos []models.ChildPhoto) []Image {
	out := make([]Image, 0, len(photos))
	for _, p := range photos {
		if p.URL != "" {
			out = append(out, Image{URL: p.URL, Context: p.Context})
		}
	}
	return out
}

type Chatter interface {
	Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, providers.ProviderInfo, error)
}

type Analyzer struct {
	chat   Chatter
	client *http.Client
	logger *slog.Logger
}

func NewAnalyzer(chat Chatter, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{chat: chat, client: &http.Client{Timeout: 30 * time.Second}, logger: logger}
}

// Analyze returns nil findings when no image could be loaded.
func (a *Analyzer) Analyze(ctx context.Context, images []Image) (*models.VisionFindings, error) {
	if len(images) == 0 {
		return nil, nil
	}
	parts := []providers.ContentPart{providers.TextPart(visionPrompt)}
	for _, img := range images {
		dataURL, err := a.toDataURL(ctx, img.URL)
		if err != nil {
			a.logger.Warn("skipping photo", "url", img.URL, "err", err)
			continue
		}
		label := img.Context
		if label == "" {
			label = "photo"
		}
		parts = append(parts, providers.TextPart("Context: "+label), providers.ImagePart(dataURL))
	}
	if len(parts) == 1 {
		return nil, nil
	}

	resp, _, err := a.chat.Chat(ctx, providers.ChatRequest{
		Operation: "vision",
		Messages: []providers.ChatMessage{
			{Role: "system", Text: "You are an assistant that strictly follows the JSON format."},
			{Role: "user", Parts: parts},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("vision chat: %w", err)
	}
	return ParseFindings(resp.Text), nil
}

func (a *Analyzer) toDataURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(body), nil
}

// ParseFindings extracts the JSON object from a model reply, falling back to
// a low-confidence summary of the raw text.
func ParseFindings(raw string) *models.VisionFindings {
	text := strings.TrimSpace(raw)
	block := ""
	lower := strings.ToLower(text)
	if start := strings.Index(lower, "```json"); start != -1 {
		if end := strings.Index(lower[start+7:], "```"); end != -1 {
			block = strings.TrimSpace(text[start+7 : start+7+end])
		}
	}
	if block == "" {
		first := strings.Index(text, "{")
		last := strings.LastIndex(text, "}")
		if first != -1 && last > first {
			block = text[first : last+1]
		}
	}
	if block != "" {
		var f models.VisionFindings
		if err := json.Unmarshal([]byte(block), &f); err == nil {
			return &f
		}
	}
	return &models.VisionFindings{
		Summary:          text,
		Observations:     []string{},
		PossibleConcerns: []string{},
		RedFlags:         []string{},
		Confidence:       "low",
	}
}
