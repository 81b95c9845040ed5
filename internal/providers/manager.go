package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"growthrag/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager holds the configured chat and embedding providers in failover order.
type Manager struct {
	llmProviders   []NamedLLMProvider
	embedProviders []NamedEmbedProvider
	logger         *slog.Logger
}

func NewManager(cfg config.Config) (*Manager, error) {
	m := &Manager{logger: slog.Default()}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		llm, ok := p.(LLMProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support llm", ref.Raw)
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: llm})
	}
	for _, ref := range ParseProviderList(cfg.EmbedProviders) {
		p, err := buildProvider(ref, cfg.EmbedDim)
		if err != nil {
			return nil, err
		}
		embed, ok := p.(EmbeddingProvider)
		if !ok {
			return nil, fmt.Errorf("provider %s does not support embeddings", ref.Raw)
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: embed})
	}
	return m, nil
}

// NewManagerWith builds a manager from already constructed providers.
func NewManagerWith(llms []NamedLLMProvider, embeds []NamedEmbedProvider) *Manager {
	return &Manager{llmProviders: llms, embedProviders: embeds, logger: slog.Default()}
}

func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

// EmbedProvider returns the preferred embedding provider.
func (m *Manager) EmbedProvider() (EmbeddingProvider, ProviderRef) {
	if len(m.embedProviders) == 0 {
		return NewMockProvider(0), ProviderRef{Raw: "mock", Name: "mock"}
	}
	i := m.PreferredEmbedOrder()[0]
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

// Chat tries each chat provider in preferred order and returns the first success.
func (m *Manager) Chat(ctx context.Context, req ChatRequest) (ChatResponse, ProviderInfo, error) {
	if len(m.llmProviders) == 0 {
		return ChatResponse{}, ProviderInfo{}, errors.New("no llm providers configured")
	}
	var lastErr error
	for _, i := range m.PreferredLLMOrder() {
		named := m.llmProviders[i]
		resp, info, err := named.Provider.Chat(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ChatResponse{}, info, ctx.Err()
		}
		kind := ClassifyError(err)
		m.logger.Warn("llm provider failed",
			"provider", named.Ref.Raw, "operation", req.Operation, "kind", kind, "err", err)
		if kind == ErrorContext {
			return ChatResponse{}, info, err
		}
	}
	return ChatResponse{}, ProviderInfo{}, fmt.Errorf("all llm providers failed: %w", lastErr)
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func (m *Manager) PreferredEmbedOrder() []int {
	return preferredOrder(len(m.embedProviders), func(i int) string { return strings.ToLower(m.embedProviders[i].Ref.Name) })
}

// preferredOrder puts real providers ahead of the mock.
func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (any, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaEmbeddingProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	case "openrouter":
		return NewOpenRouterProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
