package models

// MessageTemplate is the authored content of a deliverable step. Compilation
// against the variable context is delegated to the template package.
type MessageTemplate struct {
	Content string `json:"content,omitempty"`
	Subject string `json:"subject,omitempty"` // email subject / push title
	Title   string `json:"title,omitempty"`
	CTA     map[string]any `json:"cta,omitempty"`
}

// ReplyCallback configures inbound reply routing for email steps.
type ReplyCallback struct {
	Active bool   `json:"active"`
	URL    string `json:"url,omitempty"`
}

// StepDefinition is immutable within a job.
type StepDefinition struct {
	ID            string           `json:"id"   validate:"required"`
	Name          string           `json:"name"`
	Type          StepType         `json:"type" validate:"required"`
	Filters       []*FilterGroup   `json:"filters,omitempty"`
	Skip          string           `json:"skip,omitempty"` // boolean expression, independent of filters
	Template      *MessageTemplate `json:"template,omitempty"`
	// PayloadSchema, when set, is a JSON schema the trigger payload must
	// satisfy before the step may run.
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
	Metadata      *DigestMetadata  `json:"metadata,omitempty"` // digest/delay control values
	ReplyCallback *ReplyCallback   `json:"reply_callback,omitempty"`
	Active        bool             `json:"active"`

	// BridgeOutput carries pre-rendered content for externally authored
	// steps; when present it replaces local template compilation.
	BridgeOutput map[string]any `json:"bridge_output,omitempty"`
}
