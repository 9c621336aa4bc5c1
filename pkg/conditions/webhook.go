package conditions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	webhookTimeout      = 10 * time.Second
	webhookRetries      = 2 // additional attempts after the original
	webhookRetryBackoff = 500 * time.Millisecond
)

// WebhookClient calls operator-supplied predicate endpoints. The response
// body is expected to be a JSON object the condition's field is resolved
// against.
type WebhookClient struct {
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func NewWebhookClient(logger *slog.Logger) *WebhookClient {
	return &WebhookClient{
		client:  &http.Client{Timeout: webhookTimeout},
		retries: webhookRetries,
		backoff: webhookRetryBackoff,
		logger:  logger.With("module", "webhook_filter"),
	}
}

// Fetch posts the variable payload to the webhook and decodes the response.
// The original attempt plus up to 2 retries with backoff are made; the last
// error is returned when all attempts fail. onRetry, when non-nil, is invoked
// before each retry with the attempt number and the error being retried.
func (c *WebhookClient) Fetch(ctx context.Context, url string, payload map[string]any, onRetry func(attempt int, err error)) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.WarnContext(ctx, "Webhook filter request failed, retrying",
				"url", url, "attempt", attempt, "error", lastErr)

			if onRetry != nil {
				onRetry(attempt, lastErr)
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		result, err := c.call(ctx, url, body)
		if err == nil {
			return result, nil
		}

		lastErr = err
	}

	return nil, lastErr
}

func (c *WebhookClient) call(ctx context.Context, url string, body []byte) (map[string]any, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", response.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	var result map[string]any

	err = json.Unmarshal(data, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode webhook response: %w", err)
	}

	return result, nil
}
