package overrides

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/courierhq/courier/pkg/models"
)

func TestMerge_ScalarsReplacedByLaterLayers(t *testing.T) {
	effective := Merge(
		models.DeliveryOverride{From: "global@example.com", SenderName: "Global"},
		models.DeliveryOverride{From: "step@example.com"},
		models.DeliveryOverride{ReplyTo: "reply@example.com"},
	)

	assert.Equal(t, "step@example.com", effective.From)
	assert.Equal(t, "Global", effective.SenderName)
	assert.Equal(t, "reply@example.com", effective.ReplyTo)
}

func TestMerge_CollectionsUnionedWithoutDuplicates(t *testing.T) {
	effective := Merge(
		models.DeliveryOverride{DeviceTokens: []string{"token-a", "token-b"}},
		models.DeliveryOverride{},
		models.DeliveryOverride{DeviceTokens: []string{"token-b", "token-c"}},
	)

	assert.Equal(t, []string{"token-a", "token-b", "token-c"}, effective.DeviceTokens)
}

func TestMerge_HeadersAccumulate(t *testing.T) {
	effective := Merge(
		models.DeliveryOverride{Headers: map[string]string{"X-Env": "prod", "X-Team": "billing"}},
		models.DeliveryOverride{Headers: map[string]string{"X-Env": "staging"}},
		models.DeliveryOverride{},
	)

	assert.Equal(t, "staging", effective.Headers["X-Env"])
	assert.Equal(t, "billing", effective.Headers["X-Team"])
}

func TestForJob_ProviderLayerWins(t *testing.T) {
	job := &models.Job{
		Step: models.StepDefinition{ID: "step-1"},
		Overrides: models.Overrides{
			Global: models.DeliveryOverride{To: []string{"fallback@example.com"}},
			Steps: map[string]models.DeliveryOverride{
				"step-1": {Topic: "orders"},
			},
			Providers: map[string]models.DeliveryOverride{
				"fcm": {DeviceTokens: []string{"override-token"}},
			},
		},
	}

	effective := ForJob(job, "fcm")

	assert.Equal(t, []string{"fallback@example.com"}, effective.To)
	assert.Equal(t, "orders", effective.Topic)
	assert.Equal(t, []string{"override-token"}, effective.DeviceTokens)
}

func TestMerge_OverrideOnlyTarget(t *testing.T) {
	// A provider override may synthesize a target with no subscriber channel
	// record at all.
	effective := Merge(
		models.DeliveryOverride{},
		models.DeliveryOverride{},
		models.DeliveryOverride{DeviceTokens: []string{"synthetic-token"}, Topic: "broadcast"},
	)

	assert.Equal(t, []string{"synthetic-token"}, effective.DeviceTokens)
	assert.Equal(t, "broadcast", effective.Topic)
}
