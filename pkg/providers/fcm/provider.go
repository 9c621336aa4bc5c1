// Package fcm delivers push notifications through the Firebase Cloud
// Messaging HTTP API.
package fcm

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
	ProviderID = "fcm"

	defaultEndpoint = "https://fcm.googleapis.com/fcm/send"
	requestTimeout  = 10 * time.Second
)

type Provider struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

func NewProvider(logger *slog.Logger) *Provider {
	return &Provider{
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.With("module", "fcm_provider"),
	}
}

// NewProviderWithEndpoint points the provider at an alternate endpoint, used
// in tests.
func NewProviderWithEndpoint(endpoint string, logger *slog.Logger) *Provider {
	provider := NewProvider(logger)
	provider.endpoint = endpoint

	return provider
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) SendPush(ctx context.Context, credentials models.IntegrationCredentials, message providers.PushMessage) (*providers.Receipt, error) {
	if credentials.APIKey == "" && credentials.ServiceAccount == "" {
		return nil, fmt.Errorf("fcm credentials are missing a server key")
	}

	payload := map[string]any{
		"to": message.Token,
		"notification": map[string]any{
			"title": message.Title,
			"body":  message.Body,
		},
	}

	if len(message.Data) > 0 {
		payload["data"] = message.Data
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fcm payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build fcm request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "key="+credentials.APIKey)

	response, err := p.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("fcm request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read fcm response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("fcm returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		MulticastID json.Number `json:"multicast_id"`
		Failure     int         `json:"failure"`
		Results     []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		p.logger.WarnContext(ctx, "FCM response was not decodable", "error", err)

		return &providers.Receipt{}, nil
	}

	if decoded.Failure > 0 && len(decoded.Results) > 0 {
		return nil, fmt.Errorf("fcm rejected token: %s", decoded.Results[0].Error)
	}

	receipt := &providers.Receipt{}
	if len(decoded.Results) > 0 {
		receipt.ProviderMessageID = decoded.Results[0].MessageID
	}

	return receipt, nil
}
