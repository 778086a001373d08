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

// geminiProvider talks to the Google Generative Language API.
type geminiProvider struct {
	cfg      config.LLMConfig
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// -- Gemini wire structures (internal to this file) --

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float32 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

func newGeminiProvider(cfg config.LLMConfig, client *http.Client, logger *zap.Logger) *geminiProvider {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}
	return &geminiProvider{
		cfg:      cfg,
		endpoint: endpoint,
		client:   client,
		logger:   logger.Named("llm.gemini"),
	}
}

func (p *geminiProvider) name() string { return string(config.ProviderGemini) }

func (p *geminiProvider) generate(ctx context.Context, req generateRequest) (string, error) {
	parts := []geminiPart{{Text: req.User}}
	if len(req.ImagePNG) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(req.ImagePNG),
		}})
	}

	genCfg := geminiGenerationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
	}
	if req.ForceJSON {
		genCfg.ResponseMimeType = "application/json"
	}

	payload := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.System}}},
		GenerationConfig:  genCfg,
	}

	headers := map[string]string{"x-goog-api-key": p.cfg.APIKey}
	return postWithRetry(ctx, p.logger, p.client, p.endpoint, headers, payload, func(body []byte) (string, error) {
		var resp geminiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to decode gemini response: %w", err)
		}
		if len(resp.Candidates) == 0 {
			return "", fmt.Errorf("gemini API returned no candidates")
		}
		candidate := resp.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			return "", fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
		}
		return candidate.Content.Parts[0].Text, nil
	})
}
