package integrations

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence/memory"
	"github.com/courierhq/courier/pkg/variables"
)

func testSelector(t *testing.T) (*Selector, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	evaluator := conditions.NewEvaluator(conditions.NewWebhookClient(logger), nil, nil, logger)

	return NewSelector(store.Integrations(), evaluator, logger), store
}

func emailIntegration(id string) *models.Integration {
	return &models.Integration{
		ID:            id,
		Identifier:    id,
		EnvironmentID: "env-1",
		ProviderID:    "smtp",
		Channel:       models.ChannelEmail,
		Active:        true,
		ActivatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func selectorJob() *models.Job {
	return &models.Job{
		ID:            "job-1",
		EnvironmentID: "env-1",
		SubscriberID:  "subscriber-1",
		Type:          models.StepEmail,
	}
}

func selectorVars() *variables.Context {
	return &variables.Context{Payload: map[string]any{}}
}

func TestSelect_SingleActiveIntegration(t *testing.T) {
	selector, store := testSelector(t)
	store.AddIntegration(emailIntegration("int-1"))

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	require.Equal(t, Found, outcome.Kind)
	assert.Equal(t, "int-1", outcome.Integration.ID)
}

func TestSelect_NoActiveIntegration(t *testing.T) {
	selector, store := testSelector(t)

	inactive := emailIntegration("int-1")
	inactive.Active = false
	store.AddIntegration(inactive)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	assert.Equal(t, NoActive, outcome.Kind)
	assert.Nil(t, outcome.Integration)
}

func TestSelect_PrimaryWinsOverPriority(t *testing.T) {
	selector, store := testSelector(t)

	first := emailIntegration("int-1")
	first.Priority = 1

	second := emailIntegration("int-2")
	second.Primary = true
	second.Priority = 9

	store.AddIntegration(first)
	store.AddIntegration(second)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	require.Equal(t, Found, outcome.Kind)
	assert.Equal(t, "int-2", outcome.Integration.ID)
}

func TestQualified_ReturnsWholeRankedSet(t *testing.T) {
	selector, store := testSelector(t)

	secondary := emailIntegration("int-1")
	secondary.Priority = 1

	primary := emailIntegration("int-2")
	primary.Primary = true

	inactive := emailIntegration("int-3")
	inactive.Active = false

	store.AddIntegration(secondary)
	store.AddIntegration(primary)
	store.AddIntegration(inactive)

	qualified, kind, err := selector.Qualified(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	require.Equal(t, Found, kind)
	require.Len(t, qualified, 2)
	assert.Equal(t, "int-2", qualified[0].ID)
	assert.Equal(t, "int-1", qualified[1].ID)
}

func TestSelect_TieBreaksOnActivationThenID(t *testing.T) {
	selector, store := testSelector(t)

	older := emailIntegration("int-a")
	older.ActivatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	newer := emailIntegration("int-b")
	newer.ActivatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	store.AddIntegration(older)
	store.AddIntegration(newer)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	assert.Equal(t, "int-b", outcome.Integration.ID)

	// Identical activation times fall back to the lexicographically
	// smallest id so repeated selections stay stable.
	newer.ActivatedAt = older.ActivatedAt

	outcome, err = selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, selectorVars())

	require.NoError(t, err)
	assert.Equal(t, "int-a", outcome.Integration.ID)
}

func TestSelect_TenantConditionsRouteToMatchingIntegration(t *testing.T) {
	selector, store := testSelector(t)

	conditioned := emailIntegration("int-tenant")
	conditioned.Conditions = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{
			Condition: &models.FilterCondition{
				Source:   models.SourceTenant,
				Field:    "identifier",
				Operator: models.OperatorEqual,
				Value:    "acme",
			},
		}},
	}}

	fallback := emailIntegration("int-default")
	fallback.Priority = 10

	store.AddIntegration(conditioned)
	store.AddIntegration(fallback)

	job := selectorJob()
	job.Tenant = &models.TenantRef{Identifier: "acme"}

	vars := selectorVars()
	vars.Tenant = &models.Tenant{Identifier: "acme", EnvironmentID: "env-1"}

	outcome, err := selector.Select(context.Background(), job, Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, vars)

	require.NoError(t, err)
	require.Equal(t, Found, outcome.Kind)
	assert.Equal(t, "int-tenant", outcome.Integration.ID)
}

func TestSelect_NoTenantMatch(t *testing.T) {
	selector, store := testSelector(t)

	conditioned := emailIntegration("int-tenant")
	conditioned.Conditions = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{
			Condition: &models.FilterCondition{
				Source:   models.SourceTenant,
				Field:    "identifier",
				Operator: models.OperatorEqual,
				Value:    "acme",
			},
		}},
	}}
	store.AddIntegration(conditioned)

	job := selectorJob()
	job.Tenant = &models.TenantRef{Identifier: "globex"}

	vars := selectorVars()
	vars.Tenant = &models.Tenant{Identifier: "globex", EnvironmentID: "env-1"}

	outcome, err := selector.Select(context.Background(), job, Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
	}, vars)

	require.NoError(t, err)
	assert.Equal(t, NoTenantMatch, outcome.Kind)
}

func TestSelect_ProviderFilterExcludesOthers(t *testing.T) {
	selector, store := testSelector(t)

	smtp := emailIntegration("int-smtp")

	other := emailIntegration("int-other")
	other.ProviderID = "mailgun"
	other.Primary = true

	store.AddIntegration(smtp)
	store.AddIntegration(other)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
		ProviderID:    "smtp",
	}, selectorVars())

	require.NoError(t, err)
	require.Equal(t, Found, outcome.Kind)
	assert.Equal(t, "int-smtp", outcome.Integration.ID)
}

func TestSelect_IdentifierBypassesConditions(t *testing.T) {
	selector, store := testSelector(t)

	conditioned := emailIntegration("int-tenant")
	conditioned.Conditions = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{
			Condition: &models.FilterCondition{
				Source:   models.SourceTenant,
				Field:    "identifier",
				Operator: models.OperatorEqual,
				Value:    "acme",
			},
		}},
	}}
	store.AddIntegration(conditioned)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
		Identifier:    "int-tenant",
	}, selectorVars())

	require.NoError(t, err)
	require.Equal(t, Found, outcome.Kind)
	assert.Equal(t, "int-tenant", outcome.Integration.ID)
}

func TestSelect_UnknownIdentifier(t *testing.T) {
	selector, _ := testSelector(t)

	outcome, err := selector.Select(context.Background(), selectorJob(), Query{
		EnvironmentID: "env-1",
		Channel:       models.ChannelEmail,
		Identifier:    "missing",
	}, selectorVars())

	require.NoError(t, err)
	assert.Equal(t, NoActive, outcome.Kind)
}
