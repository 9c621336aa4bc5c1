// Package overrides merges the layered delivery override set into the
// effective parameters a channel sender dispatches with.
package overrides

import "github.com/courierhq/courier/pkg/models"

// Merge folds the override layers in precedence order: global, then
// per-step, then per-provider. Scalars are replaced by later layers;
// targeting collections (recipients, device tokens) are unioned and
// de-duplicated so override-only recipients augment, never erase,
// normally-resolved ones.
func Merge(global, perStep, perProvider models.DeliveryOverride) models.DeliveryOverride {
	effective := models.DeliveryOverride{}

	for _, layer := range []models.DeliveryOverride{global, perStep, perProvider} {
		effective.To = union(effective.To, layer.To)
		effective.DeviceTokens = union(effective.DeviceTokens, layer.DeviceTokens)

		if layer.WebhookURL != "" {
			effective.WebhookURL = layer.WebhookURL
		}

		if layer.Topic != "" {
			effective.Topic = layer.Topic
		}

		if layer.From != "" {
			effective.From = layer.From
		}

		if layer.SenderName != "" {
			effective.SenderName = layer.SenderName
		}

		if layer.ReplyTo != "" {
			effective.ReplyTo = layer.ReplyTo
		}

		if layer.IntegrationIdentifier != "" {
			effective.IntegrationIdentifier = layer.IntegrationIdentifier
		}

		effective.Headers = mergeMap(effective.Headers, layer.Headers)
		effective.Data = mergeAnyMap(effective.Data, layer.Data)
	}

	return effective
}

// ForJob resolves the effective override for one job and selected provider.
func ForJob(job *models.Job, providerID string) models.DeliveryOverride {
	return Merge(job.Overrides.Global, job.Overrides.ForStep(job.Step.ID), job.Overrides.ForProvider(providerID))
}

// union appends items of addition not yet present, preserving first-seen
// order.
func union(base, addition []string) []string {
	if len(addition) == 0 {
		return base
	}

	seen := make(map[string]struct{}, len(base))
	for _, item := range base {
		seen[item] = struct{}{}
	}

	for _, item := range addition {
		if _, ok := seen[item]; ok || item == "" {
			continue
		}

		seen[item] = struct{}{}
		base = append(base, item)
	}

	return base
}

func mergeMap(base, addition map[string]string) map[string]string {
	if len(addition) == 0 {
		return base
	}

	if base == nil {
		base = make(map[string]string, len(addition))
	}

	for key, value := range addition {
		base[key] = value
	}

	return base
}

func mergeAnyMap(base, addition map[string]any) map[string]any {
	if len(addition) == 0 {
		return base
	}

	if base == nil {
		base = make(map[string]any, len(addition))
	}

	for key, value := range addition {
		base[key] = value
	}

	return base
}
