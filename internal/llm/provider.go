package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

// generateRequest is the provider-neutral request: one multimodal turn with
// a system instruction, a user prompt, and the rendered screenshot.
type generateRequest struct {
	System      string
	User        string
	ImagePNG    []byte
	Temperature float32
	MaxTokens   int
	ForceJSON   bool
}

// provider is one backend adapter. Adapters normalize their wire formats into
// plain response text; decision parsing happens once, in the gateway.
type provider interface {
	name() string
	generate(ctx context.Context, req generateRequest) (string, error)
}

// visionPrefixes lists model name prefixes with declared vision capability,
// per provider. Observations always include a screenshot, so a model outside
// this table needs an explicit llm.vision override in config.
var visionPrefixes = map[config.LLMProvider][]string{
	config.ProviderGemini:    {"gemini-1.5", "gemini-2"},
	config.ProviderOpenAI:    {"gpt-4o", "gpt-4.1", "gpt-4-turbo", "gpt-5", "o1", "o3"},
	config.ProviderAnthropic: {"claude-3", "claude-sonnet-4", "claude-opus-4", "claude-haiku-4"},
}

// nonVisionPrefixes lists models known to lack vision, so misconfiguration
// fails with a precise message instead of an "unknown model" one.
var nonVisionPrefixes = map[config.LLMProvider][]string{
	config.ProviderOpenAI:    {"gpt-3.5", "text-"},
	config.ProviderGemini:    {"gemini-1.0", "text-"},
	config.ProviderAnthropic: {"claude-2"},
}

// supportsVision reports whether the model declares vision capability and
// whether the capability table knows the model at all.
func supportsVision(p config.LLMProvider, model string) (vision, known bool) {
	for _, prefix := range visionPrefixes[p] {
		if strings.HasPrefix(model, prefix) {
			return true, true
		}
	}
	for _, prefix := range nonVisionPrefixes[p] {
		if strings.HasPrefix(model, prefix) {
			return false, true
		}
	}
	return false, false
}

// newProvider builds the adapter for the configured backend.
func newProvider(cfg config.LLMConfig, logger *zap.Logger) (provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required (set ADWATCH_LLM_API_KEY)", cfg.Provider)
	}
	client := &http.Client{Timeout: cfg.APITimeout}
	switch cfg.Provider {
	case config.ProviderGemini:
		return newGeminiProvider(cfg, client, logger), nil
	case config.ProviderOpenAI:
		return newOpenAIProvider(cfg, client, logger), nil
	case config.ProviderAnthropic:
		return newAnthropicProvider(cfg, client, logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q", cfg.Provider)
	}
}
