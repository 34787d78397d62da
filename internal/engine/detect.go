package engine

import (
	"fmt"

	"github.com/kalambet/outreach/internal/proxy"
)

// DetectConfig holds what Detect needs to build either backend.
type DetectConfig struct {
	Provider         string
	OllamaBaseURL    string
	OpenRouterAPIKey string
}

// Detect returns the backend selected by cfg.Provider. An empty provider
// means ollama.
func Detect(cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case "openrouter":
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter provider needs an API key (set OUTREACH_OPENROUTER_API_KEY)")
		}
		return NewOpenRouterEngine(proxy.NewClient(cfg.OpenRouterAPIKey)), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
