// Package webhook delivers chat messages and custom-step payloads by POSTing
// JSON to a destination url. Chat providers that accept incoming webhooks
// (slack-compatible payload shape) and custom workflow steps both go through
// it.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

const (
	ProviderID = "webhook"

	requestTimeout = 10 * time.Second
)

type Provider struct {
	client *http.Client
	logger *slog.Logger
}

func NewProvider(logger *slog.Logger) *Provider {
	return &Provider{
		client: &http.Client{Timeout: requestTimeout},
		logger: logger.With("module", "webhook_provider"),
	}
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) SendChat(ctx context.Context, _ models.IntegrationCredentials, message providers.ChatMessage) (*providers.Receipt, error) {
	if message.WebhookURL == "" {
		return nil, fmt.Errorf("chat message has no webhook url")
	}

	return p.post(ctx, message.WebhookURL, map[string]any{"text": message.Content}, nil)
}

func (p *Provider) SendWebhook(ctx context.Context, _ models.IntegrationCredentials, message providers.WebhookMessage) (*providers.Receipt, error) {
	if message.URL == "" {
		return nil, fmt.Errorf("webhook message has no url")
	}

	return p.post(ctx, message.URL, message.Payload, message.Headers)
}

func (p *Provider) post(ctx context.Context, url string, payload any, headers map[string]string) (*providers.Receipt, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	for name, value := range headers {
		request.Header.Set(name, value)
	}

	response, err := p.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	p.logger.DebugContext(ctx, "Webhook delivered", "url", url, "status", response.StatusCode)

	return &providers.Receipt{}, nil
}
