package providers

import (
	"net/http"
	"time"
)

// NewGroqProvider serves chat completions through Groq's OpenAI-compatible API.
func NewGroqProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:      "groq",
		keyName:   keyName,
		apiKey:    resolveKey("GROWTHRAG_GROQ_KEY_", "GROQ_API_KEY", keyName),
		baseURL:   envOr("GROWTHRAG_GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		chatModel: envOr("GROWTHRAG_GROQ_MODEL", "llama-3.1-8b-instant"),
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// NewOpenRouterProvider serves chat and vision completions through OpenRouter.
func NewOpenRouterProvider(keyName string) *OpenAIProvider {
	return &OpenAIProvider{
		name:      "openrouter",
		keyName:   keyName,
		apiKey:    resolveKey("GROWTHRAG_OPENROUTER_KEY_", "OPENROUTER_API_KEY", keyName),
		baseURL:   envOr("GROWTHRAG_OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		chatModel: envOr("OPENROUTER_MODEL", "google/gemini-3-flash-preview"),
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}
