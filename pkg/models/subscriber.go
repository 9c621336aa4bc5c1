package models

import "time"

// ChannelCredentials are the subscriber-held delivery coordinates for one
// provider channel (chat webhook, push device tokens).
type ChannelCredentials struct {
	WebhookURL   string   `json:"webhook_url,omitempty"`
	DeviceTokens []string `json:"device_tokens,omitempty"`
}

// ChannelSettings binds a subscriber to one provider integration.
type ChannelSettings struct {
	ProviderID    string             `json:"provider_id"    validate:"required"`
	IntegrationID string             `json:"integration_id"`
	Credentials   ChannelCredentials `json:"credentials"`
}

// Subscriber is the notification recipient profile.
type Subscriber struct {
	ID            string            `json:"id"`
	SubscriberID  string            `json:"subscriber_id"  validate:"required"`
	EnvironmentID string            `json:"environment_id" validate:"required"`
	FirstName     string            `json:"first_name,omitempty"`
	LastName      string            `json:"last_name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Locale        string            `json:"locale,omitempty"`
	Data          map[string]any    `json:"data,omitempty"`
	Channels      []ChannelSettings `json:"channels,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Tenant is the organization-scoped tenant a trigger can be issued for.
type Tenant struct {
	ID            string         `json:"id"`
	Identifier    string         `json:"identifier" validate:"required"`
	Name          string         `json:"name,omitempty"`
	EnvironmentID string         `json:"environment_id"`
	Data          map[string]any `json:"data,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
