package models

import "time"

// EnvironmentDNS carries the inbound-parse configuration used to derive
// reply-to addresses for email steps.
type EnvironmentDNS struct {
	MXRecordConfigured bool   `json:"mx_record_configured"`
	InboundParseDomain string `json:"inbound_parse_domain,omitempty"`
}

// Environment scopes integrations, subscribers and workflows.
type Environment struct {
	ID             string          `json:"id"   validate:"required"`
	Name           string          `json:"name"`
	OrganizationID string          `json:"organization_id"`
	DNS            *EnvironmentDNS `json:"dns,omitempty"`
}

// Workflow is the persisted notification workflow definition. Only the parts
// the execution core reads are modeled; authoring and validation live in the
// API layer.
type Workflow struct {
	ID                 string             `json:"id"     validate:"required"`
	Name               string             `json:"name"   validate:"required"`
	EnvironmentID      string             `json:"environment_id"`
	OrganizationID     string             `json:"organization_id"`
	Active             bool               `json:"active"`
	Critical           bool               `json:"critical"` // critical workflows ignore subscriber preferences
	Steps              []*StepDefinition  `json:"steps"`
	PreferenceSettings PreferenceChannels `json:"preference_settings"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// FirstStepID returns the id of the workflow's first step, if any.
func (w *Workflow) FirstStepID() string {
	if len(w.Steps) == 0 {
		return ""
	}

	return w.Steps[0].ID
}
