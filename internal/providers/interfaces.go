package providers

import (
	"context"
	"encoding/json"
)

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a mixed text/image message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

func TextPart(s string) ContentPart { return ContentPart{Type: "text", Text: s} }

func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ChatMessage carries either plain Text or Parts (vision calls).
type ChatMessage struct {
	Role  string
	Text  string
	Parts []ContentPart
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var content any = m.Text
	if len(m.Parts) > 0 {
		content = m.Parts
	}
	return json.Marshal(map[string]any{"role": m.Role, "content": content})
}

func (m ChatMessage) HasImages() bool {
	for _, p := range m.Parts {
		if p.ImageURL != nil {
			return true
		}
	}
	return false
}

type ChatRequest struct {
	Operation string        `json:"operation"`
	Messages  []ChatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type ChatResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}

// BatchSizer is implemented by embedding providers with a preferred request batch size.
type BatchSizer interface {
	PreferredBatchSize() int
}
