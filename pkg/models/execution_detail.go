package models

import "time"

// ExecutionDetailSource distinguishes internally produced audit entries from
// ones reported by external collaborators.
type ExecutionDetailSource string

const (
	DetailSourceInternal ExecutionDetailSource = "internal"
	DetailSourceExternal ExecutionDetailSource = "external"
)

// ExecutionDetailStatus is the outcome an audit entry records.
type ExecutionDetailStatus string

const (
	DetailStatusPending ExecutionDetailStatus = "pending"
	DetailStatusSuccess ExecutionDetailStatus = "success"
	DetailStatusFailed  ExecutionDetailStatus = "failed"
	DetailStatusWarning ExecutionDetailStatus = "warning"
)

// ExecutionDetail is one append-only audit entry for a job. Entries are never
// mutated or deleted; the trail is the authoritative record of what happened.
type ExecutionDetail struct {
	ID             string                `json:"id"`
	JobID          string                `json:"job_id"         validate:"required"`
	MessageID      string                `json:"message_id,omitempty"`
	TransactionID  string                `json:"transaction_id"`
	EnvironmentID  string                `json:"environment_id"`
	OrganizationID string                `json:"organization_id"`
	WorkflowID     string                `json:"workflow_id"`
	SubscriberID   string                `json:"subscriber_id"`
	ProviderID     string                `json:"provider_id,omitempty"`
	Channel        ChannelType           `json:"channel,omitempty"`
	Detail         string                `json:"detail"         validate:"required"`
	Source         ExecutionDetailSource `json:"source"         validate:"required"`
	Status         ExecutionDetailStatus `json:"status"         validate:"required"`
	Raw            string                `json:"raw,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}
