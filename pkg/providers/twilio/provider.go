// Package twilio delivers SMS through the Twilio Messages REST API.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

const (
	ProviderID = "twilio"

	defaultBaseURL = "https://api.twilio.com"
	requestTimeout = 10 * time.Second
)

type Provider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewProvider(logger *slog.Logger) *Provider {
	return &Provider{
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  logger.With("module", "twilio_provider"),
	}
}

// NewProviderWithBaseURL points the provider at an alternate endpoint, used
// in tests.
func NewProviderWithBaseURL(baseURL string, logger *slog.Logger) *Provider {
	provider := NewProvider(logger)
	provider.baseURL = baseURL

	return provider
}

func (p *Provider) ID() string {
	return ProviderID
}

func (p *Provider) SendSMS(ctx context.Context, credentials models.IntegrationCredentials, message providers.SMSMessage) (*providers.Receipt, error) {
	accountSID := credentials.APIKey
	if accountSID == "" {
		return nil, fmt.Errorf("twilio credentials are missing an account sid")
	}

	form := url.Values{}
	form.Set("From", message.From)
	form.Set("To", message.To)
	form.Set("Body", message.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, accountSID)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build twilio request: %w", err)
	}

	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.SetBasicAuth(accountSID, credentials.SecretKey)

	response, err := p.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read twilio response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio returned status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		SID string `json:"sid"`
	}

	if err := json.Unmarshal(body, &decoded); err != nil {
		p.logger.WarnContext(ctx, "Twilio response was not decodable", "error", err)
	}

	return &providers.Receipt{ProviderMessageID: decoded.SID}, nil
}
