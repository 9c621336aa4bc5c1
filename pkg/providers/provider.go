// Package providers defines the transport contracts channel senders dispatch
// through. A provider adapts one external delivery service; senders stay
// provider-agnostic and select one through the registry by provider id.
package providers

import (
	"context"

	"github.com/courierhq/courier/pkg/models"
)

// Receipt is what a provider returns for an accepted dispatch.
type Receipt struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// EmailMessage is a fully resolved email dispatch.
type EmailMessage struct {
	From       string
	SenderName string
	To         []string
	ReplyTo    string
	Subject    string
	Body       string
	Headers    map[string]string
}

// SMSMessage is a fully resolved SMS dispatch.
type SMSMessage struct {
	From string
	To   string
	Body string
}

// PushMessage is one device-token dispatch. Fan-out over tokens happens in
// the sender, not the provider.
type PushMessage struct {
	Token string
	Title string
	Body  string
	Data  map[string]any
}

// ChatMessage is a webhook-destined chat dispatch.
type ChatMessage struct {
	WebhookURL string
	Content    string
}

// WebhookMessage is a custom-step dispatch of the raw rendered payload.
type WebhookMessage struct {
	URL     string
	Payload map[string]any
	Headers map[string]string
}

type EmailProvider interface {
	ID() string
	SendEmail(ctx context.Context, credentials models.IntegrationCredentials, message EmailMessage) (*Receipt, error)
}

type SMSProvider interface {
	ID() string
	SendSMS(ctx context.Context, credentials models.IntegrationCredentials, message SMSMessage) (*Receipt, error)
}

type PushProvider interface {
	ID() string
	SendPush(ctx context.Context, credentials models.IntegrationCredentials, message PushMessage) (*Receipt, error)
}

type ChatProvider interface {
	ID() string
	SendChat(ctx context.Context, credentials models.IntegrationCredentials, message ChatMessage) (*Receipt, error)
}

type WebhookProvider interface {
	ID() string
	SendWebhook(ctx context.Context, credentials models.IntegrationCredentials, message WebhookMessage) (*Receipt, error)
}
