package variables

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence/memory"
)

func testBuilder(t *testing.T) (*Builder, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	audit := execution.NewWriter(store.ExecutionDetails(), logger)

	return NewBuilder(store.Subscribers(), store.Tenants(), audit, logger), store
}

func builderJob() *models.Job {
	return &models.Job{
		ID:            "job-1",
		EnvironmentID: "env-1",
		SubscriberID:  "subscriber-1",
		Payload:       map[string]any{"order_id": "A-100"},
	}
}

func seedSubscriber(store *memory.Persistence, subscriberID, firstName string) {
	store.AddSubscriber(&models.Subscriber{
		SubscriberID:  subscriberID,
		EnvironmentID: "env-1",
		FirstName:     firstName,
		Email:         firstName + "@example.com",
	})
}

func TestBuild_AssemblesSubscriberAndPayload(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")

	vars, err := builder.Build(context.Background(), builderJob())

	require.NoError(t, err)
	require.NotNil(t, vars.Subscriber)
	assert.Equal(t, "Ada", vars.Subscriber.FirstName)
	assert.Equal(t, "A-100", vars.Payload["order_id"])
	assert.Nil(t, vars.Actor)
	assert.Nil(t, vars.Tenant)
}

func TestBuild_MissingSubscriberFails(t *testing.T) {
	builder, _ := testBuilder(t)

	_, err := builder.Build(context.Background(), builderJob())

	require.Error(t, err)
}

func TestBuild_MissingActorIsTolerated(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")

	job := builderJob()
	job.ActorID = "ghost"

	vars, err := builder.Build(context.Background(), job)

	require.NoError(t, err)
	assert.Nil(t, vars.Actor)
}

func TestBuild_ResolvesActorAndTenant(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")
	seedSubscriber(store, "subscriber-2", "Grace")
	store.AddTenant(&models.Tenant{Identifier: "acme", Name: "Acme Corp", EnvironmentID: "env-1"})

	job := builderJob()
	job.ActorID = "subscriber-2"
	job.Tenant = &models.TenantRef{Identifier: "acme"}

	vars, err := builder.Build(context.Background(), job)

	require.NoError(t, err)
	require.NotNil(t, vars.Actor)
	assert.Equal(t, "Grace", vars.Actor.FirstName)
	require.NotNil(t, vars.Tenant)
	assert.Equal(t, "Acme Corp", vars.Tenant.Name)
	assert.False(t, vars.TenantMissing)
}

func TestBuild_MissingTenantIsFlaggedAndAudited(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")

	job := builderJob()
	job.Tenant = &models.TenantRef{Identifier: "ghost-corp"}

	vars, err := builder.Build(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, vars.TenantMissing)
	assert.Nil(t, vars.Tenant)

	details, err := store.ExecutionDetails().ByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, execution.DetailTenantNotFound, details[0].Detail)
}

func TestBuild_DigestEventsExposeStepVariables(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")

	job := builderJob()
	job.Digest = &models.DigestMetadata{
		Events: []map[string]any{
			{"payload": map[string]any{"order_id": "A-100"}},
			{"payload": map[string]any{"order_id": "A-101"}},
		},
	}

	vars, err := builder.Build(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, vars.Step.Digest)
	assert.Equal(t, 2, vars.Step.TotalCount)
	require.Len(t, vars.Step.Events, 2)
}

func TestTemplateData_FlattensContext(t *testing.T) {
	builder, store := testBuilder(t)
	seedSubscriber(store, "subscriber-1", "Ada")

	vars, err := builder.Build(context.Background(), builderJob())
	require.NoError(t, err)

	data := vars.TemplateData()

	subscriber, ok := data["subscriber"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", subscriber["first_name"])

	payload, ok := data["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A-100", payload["order_id"])
}
