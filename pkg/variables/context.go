// Package variables assembles the evaluation context a single job's filters,
// preferences and templates are resolved against.
package variables

import (
	"encoding/json"

	"github.com/courierhq/courier/pkg/models"
)

// StepVariables exposes digest aggregates to templates and filters of steps
// that run after a digest.
type StepVariables struct {
	Digest     bool             `json:"digest"`
	Events     []map[string]any `json:"events,omitempty"`
	TotalCount int              `json:"total_count"`
}

// Context is the ephemeral variable context built once per job. Evaluation
// never mutates it; only its evaluation results are audited.
type Context struct {
	Subscriber *models.Subscriber
	Actor      *models.Subscriber
	Tenant     *models.Tenant
	Payload    map[string]any
	Step       StepVariables

	// TenantMissing is set when the job referenced a tenant identifier that
	// does not exist; the runner surfaces this as a distinct outcome.
	TenantMissing bool
}

// TemplateData flattens the context into the map handed to template
// rendering and placeholder resolution.
func (c *Context) TemplateData() map[string]any {
	data := map[string]any{
		"payload": c.Payload,
		"step": map[string]any{
			"digest":      c.Step.Digest,
			"events":      c.Step.Events,
			"total_count": c.Step.TotalCount,
		},
	}

	if c.Subscriber != nil {
		data["subscriber"] = toMap(c.Subscriber)
	}

	if c.Actor != nil {
		data["actor"] = toMap(c.Actor)
	}

	if c.Tenant != nil {
		data["tenant"] = toMap(c.Tenant)
	}

	return data
}

// SourceData returns the lookup root for one filter source. The second
// return is false when the source has no data in this context.
func (c *Context) SourceData(source models.FilterSource) (map[string]any, bool) {
	switch source {
	case models.SourcePayload:
		return c.Payload, c.Payload != nil
	case models.SourceSubscriber:
		if c.Subscriber == nil {
			return nil, false
		}

		return toMap(c.Subscriber), true
	case models.SourceTenant:
		if c.Tenant == nil {
			return nil, false
		}

		return toMap(c.Tenant), true
	default:
		return nil, false
	}
}

// toMap converts a model to its JSON object form for dot-path lookups.
func toMap(v any) map[string]any {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var result map[string]any

	err = json.Unmarshal(encoded, &result)
	if err != nil {
		return nil
	}

	return result
}
