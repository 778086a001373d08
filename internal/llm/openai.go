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

// openAIProvider talks to the OpenAI chat completions API (and any
// OpenAI-compatible endpoint via llm.endpoint).
type openAIProvider struct {
	cfg      config.LLMConfig
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func newOpenAIProvider(cfg config.LLMConfig, client *http.Client, logger *zap.Logger) *openAIProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	return &openAIProvider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		logger:   logger.Named("llm.openai"),
	}
}

func (p *openAIProvider) name() string { return string(config.ProviderOpenAI) }

func (p *openAIProvider) generate(ctx context.Context, req generateRequest) (string, error) {
	userContent := []openAIContentPart{{Type: "text", Text: req.User}}
	if len(req.ImagePNG) > 0 {
		dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.ImagePNG)
		userContent = append(userContent, openAIContentPart{
			Type:     "image_url",
			ImageURL: &openAIImageURL{URL: dataURL},
		})
	}

	payload := openAIRequest{
		Model: p.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: userContent},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ForceJSON {
		payload.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	return postWithRetry(ctx, p.logger, p.client, p.endpoint, headers, payload, func(body []byte) (string, error) {
		var resp openAIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode openai response: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("openai API returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
