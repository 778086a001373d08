package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	json "github.com/json-iterator/go"

	"fmt"
)

// postWithRetry POSTs a JSON payload and decodes the response, retrying
// transient failures (network errors, 429s, 5xx) with exponential backoff.
// Decode failures and 4xx responses are permanent.
func postWithRetry(
	ctx context.Context,
	logger *zap.Logger,
	client *http.Client,
	url string,
	headers map[string]string,
	payload any,
	decode func(body []byte) (string, error),
) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := client.Do(httpReq)
		if err != nil {
			logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
				logger.Warn("Transient backend error, retrying...", zap.Int("status", resp.StatusCode))
				return err
			default:
				return backoff.Permanent(err)
			}
		}

		out, err := decode(respBody)
		if err != nil {
			return backoff.Permanent(err)
		}

		logger.Debug("LLM generation complete", zap.Duration("duration", time.Since(start)))
		content = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}
