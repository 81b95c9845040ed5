package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOllamaModel = "nomic-embed-text"

var ollamaModelAliases = map[string]string{
	"nomic":  "nomic-embed-text",
	"bge":    "bge-m3",
	"minilm": "all-minilm",
	"mxbai":  "mxbai-embed-large",
}

// OllamaEmbeddingProvider embeds with a local Ollama server. A whole batch is
// sent in one /api/embed call.
type OllamaEmbeddingProvider struct {
	alias   string
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbeddingProvider(alias string) *OllamaEmbeddingProvider {
	return &OllamaEmbeddingProvider{
		alias:   alias,
		baseURL: strings.TrimRight(envOr("GROWTHRAG_OLLAMA_BASE_URL", "http://localhost:11434"), "/"),
		model:   ollamaModel(alias),
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (o *OllamaEmbeddingProvider) PreferredBatchSize() int { return 16 }

func (o *OllamaEmbeddingProvider) info() ProviderInfo {
	return ProviderInfo{Name: "ollama", Model: o.model, Key: o.alias}
}

func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if len(req.Inputs) == 0 {
		return nil, o.info(), errors.New("ollama: no embedding inputs")
	}
	payload, err := json.Marshal(map[string]any{"model": o.model, "input": req.Inputs})
	if err != nil {
		return nil, o.info(), fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, o.info(), fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.info(), fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, o.info(), fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, o.info(), &StatusError{Provider: "ollama", Code: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, o.info(), fmt.Errorf("decode ollama response: %w", err)
	}
	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, o.info(), fmt.Errorf("ollama returned an empty vector at %d", i)
		}
		out[i] = fitDimension(v, req.Dimension)
	}
	return out, o.info(), nil
}

// ollamaModel resolves a provider alias: a per-alias env override, a known
// short name, or a literal model name such as "ollama:nomic-embed-text".
func ollamaModel(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return envOr("GROWTHRAG_OLLAMA_EMBED_MODEL", defaultOllamaModel)
	}
	if v := strings.TrimSpace(os.Getenv("GROWTHRAG_OLLAMA_EMBED_MODEL_" + sanitizeEnvToken(alias))); v != "" {
		return v
	}
	if m, ok := ollamaModelAliases[strings.ToLower(alias)]; ok {
		return m
	}
	if strings.ContainsAny(alias, "-/.") {
		return alias
	}
	return envOr("GROWTHRAG_OLLAMA_EMBED_MODEL", defaultOllamaModel)
}

func sanitizeEnvToken(s string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(strings.ToUpper(s))
}

// fitDimension truncates or zero-pads v to the index column width.
func fitDimension(v []float32, target int) []float32 {
	switch {
	case target <= 0 || len(v) == target:
		return v
	case len(v) > target:
		return v[:target]
	default:
		out := make([]float32, target)
		copy(out, v)
		return out
	}
}
