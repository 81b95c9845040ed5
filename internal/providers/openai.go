package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAIProvider talks to OpenAI-compatible REST APIs (OpenAI, Groq, OpenRouter).
type OpenAIProvider struct {
	name       string
	keyName    string
	apiKey     string
	baseURL    string
	chatModel  string
	embedModel string
	client     *http.Client
}

func NewOpenAIProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:       "openai",
		keyName:    keyName,
		apiKey:     resolveKey("GROWTHRAG_OPENAI_KEY_", "OPENAI_API_KEY", keyName),
		baseURL:    envOr("GROWTHRAG_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		chatModel:  envOr("GROWTHRAG_OPENAI_MODEL", "gpt-4o-mini"),
		embedModel: envOr("GROWTHRAG_OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (o *OpenAIProvider) info(model string) ProviderInfo {
	return ProviderInfo{Name: o.name, Model: model, Key: o.keyName}
}

func (o *OpenAIProvider) PreferredBatchSize() int { return 64 }

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := o.info(o.embedModel)
	if o.apiKey == "" {
		return nil, info, fmt.Errorf("%s key missing for alias %q", o.name, o.keyName)
	}
	if o.embedModel == "" {
		return nil, info, fmt.Errorf("%s does not serve embeddings", o.name)
	}
	body := map[string]any{"model": o.embedModel, "input": req.Inputs}
	if req.Dimension > 0 {
		body["dimensions"] = req.Dimension
	}
	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := o.post(ctx, "/embeddings", body, &parsed); err != nil {
		return nil, info, fmt.Errorf("embed: %w", err)
	}
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, info, nil
}

func (o *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, ProviderInfo, error) {
	info := o.info(o.chatModel)
	if o.apiKey == "" {
		return ChatResponse{}, info, fmt.Errorf("%s key missing for alias %q", o.name, o.keyName)
	}
	body := map[string]any{
		"model":    o.chatModel,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := o.post(ctx, "/chat/completions", body, &parsed); err != nil {
		return ChatResponse{}, info, fmt.Errorf("chat: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, info, fmt.Errorf("%s returned empty choices", o.name)
	}
	return ChatResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}

func (o *OpenAIProvider) post(ctx context.Context, path string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", o.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build %s request: %w", o.name, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", o.name, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return &StatusError{Provider: o.name, Code: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", o.name, err)
	}
	return nil
}

func resolveKey(aliasPrefix, fallbackEnv, alias string) string {
	if alias != "" {
		if k := os.Getenv(aliasPrefix + strings.ToUpper(sanitizeEnvToken(alias))); k != "" {
			return k
		}
	}
	return os.Getenv(fallbackEnv)
}

func envOr(k, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return fallback
}
