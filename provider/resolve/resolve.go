// Package resolve constructs model adapters from provider-agnostic
// configuration, typically loaded from a TOML file.
package resolve

import (
	"fmt"

	"github.com/strandkit/strand"
	"github.com/strandkit/strand/provider/deepseek"
	"github.com/strandkit/strand/provider/openaicompat"
	"github.com/strandkit/strand/provider/xai"
)

// Config holds provider-agnostic configuration for creating a ModelAdapter.
type Config struct {
	Provider string // "openai", "xai", "deepseek", "groq", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for unknown providers; auto-filled for known ones

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
}

// Adapter creates a strand.ModelAdapter from a provider-agnostic Config.
func Adapter(cfg Config) (strand.ModelAdapter, error) {
	switch cfg.Provider {
	case "xai":
		return xai.New(cfg.APIKey, cfg.Model, adapterOptions(cfg)...), nil
	case "deepseek":
		return deepseek.New(cfg.APIKey, cfg.Model, adapterOptions(cfg)...), nil
	case "openai", "groq", "together", "mistral", "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURL(cfg.Provider)
		}
		opts := append([]openaicompat.AdapterOption{openaicompat.WithName(cfg.Provider)}, adapterOptions(cfg)...)
		return openaicompat.New(cfg.APIKey, cfg.Model, baseURL, opts...), nil
	default:
		if cfg.BaseURL != "" {
			// Any OpenAI-compatible server works when a base URL is given.
			opts := append([]openaicompat.AdapterOption{openaicompat.WithName(cfg.Provider)}, adapterOptions(cfg)...)
			return openaicompat.New(cfg.APIKey, cfg.Model, cfg.BaseURL, opts...), nil
		}
		return nil, fmt.Errorf("resolve: unknown provider %q and no base URL", cfg.Provider)
	}
}

// adapterOptions converts the cross-provider generation options into
// adapter-level request options.
func adapterOptions(cfg Config) []openaicompat.AdapterOption {
	var reqOpts []openaicompat.Option
	if cfg.Temperature != nil {
		reqOpts = append(reqOpts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		reqOpts = append(reqOpts, openaicompat.WithTopP(*cfg.TopP))
	}
	if len(reqOpts) == 0 {
		return nil
	}
	return []openaicompat.AdapterOption{openaicompat.WithOptions(reqOpts...)}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
