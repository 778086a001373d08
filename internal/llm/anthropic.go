package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	json "github.com/json-iterator/go"

	"github.com/revosurge/adwatch/internal/config"
)

// anthropicProvider talks to the Anthropic messages API.
type anthropicProvider struct {
	cfg      config.LLMConfig
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type anthropicContentBlock struct {
	Type   string                 `json:"type"`
	Text   string                 `json:"text,omitempty"`
	Source *anthropicImageSource  `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func newAnthropicProvider(cfg config.LLMConfig, client *http.Client, logger *zap.Logger) *anthropicProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	return &anthropicProvider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		logger:   logger.Named("llm.anthropic"),
	}
}

func (p *anthropicProvider) name() string { return string(config.ProviderAnthropic) }

func (p *anthropicProvider) generate(ctx context.Context, req generateRequest) (string, error) {
	content := []anthropicContentBlock{{Type: "text", Text: req.User}}
	if len(req.ImagePNG) > 0 {
		content = append(content, anthropicContentBlock{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(req.ImagePNG),
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096 // the messages API requires an explicit cap
	}

	payload := anthropicRequest{
		Model:       p.cfg.Model,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	headers := map[string]string{
		"x-api-key":         p.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	return postWithRetry(ctx, p.logger, p.client, p.endpoint, headers, payload, func(body []byte) (string, error) {
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode anthropic response: %w", err)
		}
		for _, block := range resp.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", fmt.Errorf("anthropic API returned no text content (stop reason: %s)", resp.StopReason)
	})
}
