package models

// DeliveryOverride is one layer of caller-supplied delivery parameters.
// Scalar fields replace values from earlier layers; targeting collections
// (To, DeviceTokens) are unioned across layers.
type DeliveryOverride struct {
	To                    []string          `json:"to,omitempty"`
	DeviceTokens          []string          `json:"device_tokens,omitempty"`
	WebhookURL            string            `json:"webhook_url,omitempty"`
	Topic                 string            `json:"topic,omitempty"`
	From                  string            `json:"from,omitempty"`
	SenderName            string            `json:"sender_name,omitempty"`
	ReplyTo               string            `json:"reply_to,omitempty"`
	IntegrationIdentifier string            `json:"integration_identifier,omitempty"`
	Headers               map[string]string `json:"headers,omitempty"`
	Data                  map[string]any    `json:"data,omitempty"`
}

// Overrides is the layered override set attached to a job. Precedence when
// merging is global, then the job's step, then the selected provider.
type Overrides struct {
	Global    DeliveryOverride            `json:"global,omitempty"`
	Steps     map[string]DeliveryOverride `json:"steps,omitempty"`     // keyed by step id
	Providers map[string]DeliveryOverride `json:"providers,omitempty"` // keyed by provider id
}

// ForStep returns the per-step layer for the given step id.
func (o Overrides) ForStep(stepID string) DeliveryOverride {
	return o.Steps[stepID]
}

// ForProvider returns the per-provider layer for the given provider id.
func (o Overrides) ForProvider(providerID string) DeliveryOverride {
	return o.Providers[providerID]
}
