package models

import "time"

// MessageStatus is the delivery state of a persisted message.
type MessageStatus string

const (
	MessagePending MessageStatus = "pending"
	MessageSent    MessageStatus = "sent"
	MessageError   MessageStatus = "error"
	MessageWarning MessageStatus = "warning"
)

// Message is the persisted record of one attempted notification. It is
// created with status pending before dispatch and updated in place with the
// terminal outcome; it is never deleted by this core.
type Message struct {
	ID                string         `json:"id"`
	JobID             string         `json:"job_id"`
	TransactionID     string         `json:"transaction_id"`
	EnvironmentID     string         `json:"environment_id"`
	OrganizationID    string         `json:"organization_id"`
	WorkflowID        string         `json:"workflow_id"`
	SubscriberID      string         `json:"subscriber_id"`
	Channel           ChannelType    `json:"channel"`
	ProviderID        string         `json:"provider_id"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Status            MessageStatus  `json:"status"`
	Subject           string         `json:"subject,omitempty"`
	Content           string         `json:"content,omitempty"`
	Recipient         string         `json:"recipient,omitempty"`
	DeviceTokens      []string       `json:"device_tokens,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	Overrides         map[string]any `json:"overrides,omitempty"`
	ErrorID           string         `json:"error_id,omitempty"`
	ErrorText         string         `json:"error_text,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
