package models

import "time"

// IntegrationCredentials is the decrypted provider credential set. Only the
// fields the channel senders hand to transports are modeled; provider wire
// formats are opaque to this core.
type IntegrationCredentials struct {
	APIKey       string            `json:"api_key,omitempty"`
	SecretKey    string            `json:"secret_key,omitempty"`
	From         string            `json:"from,omitempty"`
	SenderName   string            `json:"sender_name,omitempty"`
	Host         string            `json:"host,omitempty"`
	Port         string            `json:"port,omitempty"`
	User         string            `json:"user,omitempty"`
	Password     string            `json:"password,omitempty"`
	ServiceAccount string          `json:"service_account,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Integration is a configured provider credential set scoped to an
// environment and channel. Multiple integrations may exist per channel;
// selection among them must be deterministic.
type Integration struct {
	ID             string                 `json:"id"              validate:"required"`
	Identifier     string                 `json:"identifier"      validate:"required"`
	EnvironmentID  string                 `json:"environment_id"  validate:"required"`
	OrganizationID string                 `json:"organization_id"`
	ProviderID     string                 `json:"provider_id"     validate:"required"`
	Channel        ChannelType            `json:"channel"         validate:"required"`
	Credentials    IntegrationCredentials `json:"credentials"`
	Active         bool                   `json:"active"`
	Primary        bool                   `json:"primary"`
	Priority       int                    `json:"priority"`
	Conditions     []*FilterGroup         `json:"conditions,omitempty"`
	ActivatedAt    time.Time              `json:"activated_at"`
}
