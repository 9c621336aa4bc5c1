package senders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/integrations"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence/memory"
	"github.com/courierhq/courier/pkg/providers"
	"github.com/courierhq/courier/pkg/variables"
)

type fakeEmailProvider struct {
	sent []providers.EmailMessage
	err  error
}

func (f *fakeEmailProvider) ID() string { return "fake-email" }

func (f *fakeEmailProvider) SendEmail(_ context.Context, _ models.IntegrationCredentials, message providers.EmailMessage) (*providers.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.sent = append(f.sent, message)

	return &providers.Receipt{ProviderMessageID: "provider-msg-1"}, nil
}

type fakePushProvider struct {
	mu         sync.Mutex
	id         string
	sent       []providers.PushMessage
	failTokens map[string]bool
	failAll    bool
}

func (f *fakePushProvider) ID() string {
	if f.id == "" {
		return "fake-push"
	}

	return f.id
}

func (f *fakePushProvider) SendPush(_ context.Context, _ models.IntegrationCredentials, message providers.PushMessage) (*providers.Receipt, error) {
	if f.failAll || f.failTokens[message.Token] {
		return nil, errors.New("token rejected")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, message)

	return &providers.Receipt{}, nil
}

func (f *fakePushProvider) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	tokens := make([]string, 0, len(f.sent))
	for _, message := range f.sent {
		tokens = append(tokens, message.Token)
	}

	return tokens
}

type fixture struct {
	store    *memory.Persistence
	registry *providers.Registry
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	audit := execution.NewWriter(store.ExecutionDetails(), logger)
	evaluator := conditions.NewEvaluator(conditions.NewWebhookClient(logger), nil, audit, logger)
	registry := providers.NewRegistry()

	return &fixture{
		store:    store,
		registry: registry,
		deps: Deps{
			Selector:  integrations.NewSelector(store.Integrations(), evaluator, logger),
			Providers: registry,
			Messages:  store.Messages(),
			Audit:     audit,
			Logger:    logger,
		},
	}
}

func (f *fixture) addIntegration(channel models.ChannelType, providerID string) *models.Integration {
	integration := &models.Integration{
		ID:            "int-" + string(channel),
		Identifier:    "default-" + string(channel),
		EnvironmentID: "env-1",
		ProviderID:    providerID,
		Channel:       channel,
		Active:        true,
		Primary:       true,
		ActivatedAt:   time.Now().UTC(),
	}

	f.store.AddIntegration(integration)

	return integration
}

func emailDispatch(subscriber *models.Subscriber) *Dispatch {
	job := &models.Job{
		ID:            "job-1",
		TransactionID: "tx-1",
		EnvironmentID: "env-1",
		WorkflowID:    "workflow-1",
		SubscriberID:  "subscriber-1",
		Type:          models.StepEmail,
		Step: models.StepDefinition{
			ID:   "step-email",
			Type: models.StepEmail,
			Template: &models.MessageTemplate{
				Subject: "Order {{.payload.order_id}} shipped",
				Content: "Hi {{.subscriber.first_name}}, your order is on its way.",
			},
			Active: true,
		},
		Payload: map[string]any{"order_id": "A-100"},
	}

	return &Dispatch{
		Job: job,
		Vars: &variables.Context{
			Subscriber: subscriber,
			Payload:    job.Payload,
		},
	}
}

func testSubscriber() *models.Subscriber {
	return &models.Subscriber{
		SubscriberID:  "subscriber-1",
		EnvironmentID: "env-1",
		FirstName:     "Ada",
		Email:         "ada@example.com",
		Phone:         "+15550100",
	}
}

func detailCodes(t *testing.T, store *memory.Persistence, jobID string) []string {
	t.Helper()

	details, err := store.ExecutionDetails().ByJob(context.Background(), jobID)
	require.NoError(t, err)

	codes := make([]string, 0, len(details))
	for _, detail := range details {
		codes = append(codes, detail.Detail)
	}

	return codes
}

func TestEmailSender_RendersAndDelivers(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")

	provider := &fakeEmailProvider{}
	f.registry.RegisterEmail(provider)

	dispatch := emailDispatch(testSubscriber())

	err := NewEmailSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "Order A-100 shipped", provider.sent[0].Subject)
	assert.Equal(t, []string{"ada@example.com"}, provider.sent[0].To)

	messages, err := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageSent, messages[0].Status)
	assert.Equal(t, "provider-msg-1", messages[0].ProviderMessageID)

	assert.Contains(t, detailCodes(t, f.store, "job-1"), execution.DetailMessageSent)
}

func TestEmailSender_MissingAddressFails(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")
	f.registry.RegisterEmail(&fakeEmailProvider{})

	subscriber := testSubscriber()
	subscriber.Email = ""

	err := NewEmailSender(f.deps).Send(context.Background(), emailDispatch(subscriber))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailSubscriberMissingEmail, sendErr.Detail)
}

func TestEmailSender_NoActiveIntegrationFails(t *testing.T) {
	f := newFixture(t)

	err := NewEmailSender(f.deps).Send(context.Background(), emailDispatch(testSubscriber()))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailSubscriberNoActiveIntegration, sendErr.Detail)
	assert.Contains(t, detailCodes(t, f.store, "job-1"), execution.DetailSubscriberNoActiveIntegration)
}

func TestEmailSender_OverrideIdentifierNotFound(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")
	f.registry.RegisterEmail(&fakeEmailProvider{})

	dispatch := emailDispatch(testSubscriber())
	dispatch.Job.Overrides = models.Overrides{
		Global: models.DeliveryOverride{IntegrationIdentifier: "nonexistent"},
	}

	err := NewEmailSender(f.deps).Send(context.Background(), dispatch)

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailIntegrationIdentifierNotFound, sendErr.Detail)
}

func TestEmailSender_MalformedTemplateIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")
	f.registry.RegisterEmail(&fakeEmailProvider{})

	dispatch := emailDispatch(testSubscriber())
	dispatch.Job.Step.Template.Content = "Hello {{.payload.missing_field}}"

	err := NewEmailSender(f.deps).Send(context.Background(), dispatch)

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailMessageContentSyntaxError, sendErr.Detail)

	// No message record is created for content that cannot be generated.
	messages, err := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestEmailSender_ProviderErrorMarksMessage(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")
	f.registry.RegisterEmail(&fakeEmailProvider{err: errors.New("rate limited")})

	err := NewEmailSender(f.deps).Send(context.Background(), emailDispatch(testSubscriber()))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailProviderError, sendErr.Detail)

	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageError, messages[0].Status)
	assert.Contains(t, messages[0].ErrorText, "rate limited")
}

func TestEmailSender_ReplyCallbackWarnings(t *testing.T) {
	tests := []struct {
		name        string
		callback    *models.ReplyCallback
		environment *models.Environment
		wantDetail  string
	}{
		{
			name:       "missing callback url",
			callback:   &models.ReplyCallback{Active: true},
			wantDetail: execution.DetailReplyCallbackMissingURL,
		},
		{
			name:        "mx record not configured",
			callback:    &models.ReplyCallback{Active: true, URL: "https://acme.example.com/replies"},
			environment: &models.Environment{ID: "env-1", DNS: &models.EnvironmentDNS{}},
			wantDetail:  execution.DetailReplyCallbackMissingMXRecord,
		},
		{
			name:     "inbound parse domain missing",
			callback: &models.ReplyCallback{Active: true, URL: "https://acme.example.com/replies"},
			environment: &models.Environment{ID: "env-1", DNS: &models.EnvironmentDNS{
				MXRecordConfigured: true,
			}},
			wantDetail: execution.DetailReplyCallbackMissingMXDomain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addIntegration(models.ChannelEmail, "fake-email")

			provider := &fakeEmailProvider{}
			f.registry.RegisterEmail(provider)

			dispatch := emailDispatch(testSubscriber())
			dispatch.Job.Step.ReplyCallback = tt.callback
			dispatch.Environment = tt.environment

			err := NewEmailSender(f.deps).Send(context.Background(), dispatch)

			// A warning never blocks delivery.
			require.NoError(t, err)
			require.Len(t, provider.sent, 1)
			assert.Empty(t, provider.sent[0].ReplyTo)
			assert.Contains(t, detailCodes(t, f.store, "job-1"), tt.wantDetail)
		})
	}
}

func TestEmailSender_ReplyCallbackDerivesAddress(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelEmail, "fake-email")

	provider := &fakeEmailProvider{}
	f.registry.RegisterEmail(provider)

	dispatch := emailDispatch(testSubscriber())
	dispatch.Job.Step.ReplyCallback = &models.ReplyCallback{Active: true, URL: "https://acme.example.com/replies"}
	dispatch.Environment = &models.Environment{ID: "env-1", DNS: &models.EnvironmentDNS{
		MXRecordConfigured: true,
		InboundParseDomain: "inbound.acme.example.com",
	}}

	err := NewEmailSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "parse+tx-1@inbound.acme.example.com", provider.sent[0].ReplyTo)
}

func pushDispatch(subscriber *models.Subscriber) *Dispatch {
	job := &models.Job{
		ID:            "job-1",
		TransactionID: "tx-1",
		EnvironmentID: "env-1",
		WorkflowID:    "workflow-1",
		SubscriberID:  "subscriber-1",
		Type:          models.StepPush,
		Step: models.StepDefinition{
			ID:   "step-push",
			Type: models.StepPush,
			Template: &models.MessageTemplate{
				Subject: "New activity",
				Content: "Something happened",
			},
			Active: true,
		},
	}

	return &Dispatch{
		Job:  job,
		Vars: &variables.Context{Subscriber: subscriber},
	}
}

func pushSubscriber(tokens ...string) *models.Subscriber {
	return &models.Subscriber{
		SubscriberID:  "subscriber-1",
		EnvironmentID: "env-1",
		Channels: []models.ChannelSettings{{
			ProviderID:  "fake-push",
			Credentials: models.ChannelCredentials{DeviceTokens: tokens},
		}},
	}
}

func TestPushSender_FansOutOverTokens(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")

	provider := &fakePushProvider{}
	f.registry.RegisterPush(provider)

	err := NewPushSender(f.deps).Send(context.Background(), pushDispatch(pushSubscriber("token-a", "token-b")))

	require.NoError(t, err)
	assert.Len(t, provider.sent, 2)
}

func TestPushSender_PartialFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")

	provider := &fakePushProvider{failTokens: map[string]bool{"token-a": true}}
	f.registry.RegisterPush(provider)

	err := NewPushSender(f.deps).Send(context.Background(), pushDispatch(pushSubscriber("token-a", "token-b")))

	require.NoError(t, err)
	require.Len(t, provider.sent, 1)
	assert.Equal(t, "token-b", provider.sent[0].Token)

	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageSent, messages[0].Status)
}

func TestPushSender_AllTokensFailingFailsStep(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")

	provider := &fakePushProvider{failTokens: map[string]bool{"token-a": true, "token-b": true}}
	f.registry.RegisterPush(provider)

	err := NewPushSender(f.deps).Send(context.Background(), pushDispatch(pushSubscriber("token-a", "token-b")))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailProviderError, sendErr.Detail)

	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageError, messages[0].Status)
}

func TestPushSender_OverrideTokensAugmentSubscriberTokens(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")

	provider := &fakePushProvider{}
	f.registry.RegisterPush(provider)

	dispatch := pushDispatch(pushSubscriber("token-a"))
	dispatch.Job.Overrides = models.Overrides{
		Providers: map[string]models.DeliveryOverride{
			"fake-push": {DeviceTokens: []string{"token-a", "override-token"}},
		},
	}

	err := NewPushSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"token-a", "override-token"}, provider.sentTokens())
}

func TestPushSender_NoTokensFails(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")
	f.registry.RegisterPush(&fakePushProvider{})

	err := NewPushSender(f.deps).Send(context.Background(), pushDispatch(pushSubscriber()))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailPushMissingDeviceTokens, sendErr.Detail)
}

func TestPushSender_NoPushChannelAtAllFails(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")
	f.registry.RegisterPush(&fakePushProvider{})

	subscriber := testSubscriber() // no channel settings

	err := NewPushSender(f.deps).Send(context.Background(), pushDispatch(subscriber))

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailSubscriberNoActiveChannel, sendErr.Detail)
	assert.Contains(t, detailCodes(t, f.store, "job-1"), execution.DetailSubscriberNoActiveChannel)
}

// twoChannelPushFixture wires two active push integrations and a subscriber
// holding one device token on each provider.
func twoChannelPushFixture(t *testing.T) (*fixture, *fakePushProvider, *fakePushProvider, *Dispatch) {
	t.Helper()

	f := newFixture(t)
	f.addIntegration(models.ChannelPush, "fake-push")
	f.store.AddIntegration(&models.Integration{
		ID:            "int-push-b",
		Identifier:    "secondary-push",
		EnvironmentID: "env-1",
		ProviderID:    "fake-push-b",
		Channel:       models.ChannelPush,
		Active:        true,
		ActivatedAt:   time.Now().UTC(),
	})

	providerA := &fakePushProvider{}
	providerB := &fakePushProvider{id: "fake-push-b"}
	f.registry.RegisterPush(providerA)
	f.registry.RegisterPush(providerB)

	subscriber := &models.Subscriber{
		SubscriberID:  "subscriber-1",
		EnvironmentID: "env-1",
		Channels: []models.ChannelSettings{
			{ProviderID: "fake-push", Credentials: models.ChannelCredentials{DeviceTokens: []string{"token-a"}}},
			{ProviderID: "fake-push-b", Credentials: models.ChannelCredentials{DeviceTokens: []string{"token-b"}}},
		},
	}

	return f, providerA, providerB, pushDispatch(subscriber)
}

func TestPushSender_FansOutAcrossProviderChannels(t *testing.T) {
	f, providerA, providerB, dispatch := twoChannelPushFixture(t)

	err := NewPushSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)
	assert.Equal(t, []string{"token-a"}, providerA.sentTokens())
	assert.Equal(t, []string{"token-b"}, providerB.sentTokens())

	// One message record per provider channel, both sent.
	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 2)

	byProvider := map[string]models.MessageStatus{}
	for _, message := range messages {
		byProvider[message.ProviderID] = message.Status
	}

	assert.Equal(t, models.MessageSent, byProvider["fake-push"])
	assert.Equal(t, models.MessageSent, byProvider["fake-push-b"])
}

func TestPushSender_OneChannelFailingStillSucceeds(t *testing.T) {
	f, providerA, providerB, dispatch := twoChannelPushFixture(t)
	providerB.failAll = true

	err := NewPushSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)
	assert.Equal(t, []string{"token-a"}, providerA.sentTokens())
	assert.Empty(t, providerB.sentTokens())

	// The failed channel keeps its own errored message and audit entry.
	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 2)

	byProvider := map[string]models.MessageStatus{}
	for _, message := range messages {
		byProvider[message.ProviderID] = message.Status
	}

	assert.Equal(t, models.MessageSent, byProvider["fake-push"])
	assert.Equal(t, models.MessageError, byProvider["fake-push-b"])
	assert.Contains(t, detailCodes(t, f.store, "job-1"), execution.DetailProviderError)
}

func TestPushSender_AllChannelsFailingFailsStep(t *testing.T) {
	f, providerA, providerB, dispatch := twoChannelPushFixture(t)
	providerA.failAll = true
	providerB.failAll = true

	err := NewPushSender(f.deps).Send(context.Background(), dispatch)

	var sendErr *SendError

	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, execution.DetailProviderError, sendErr.Detail)

	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 2)

	for _, message := range messages {
		assert.Equal(t, models.MessageError, message.Status)
	}
}

func TestInAppSender_WritesFeedMessage(t *testing.T) {
	f := newFixture(t)
	f.addIntegration(models.ChannelInApp, "in-app")

	dispatch := &Dispatch{
		Job: &models.Job{
			ID:            "job-1",
			TransactionID: "tx-1",
			EnvironmentID: "env-1",
			WorkflowID:    "workflow-1",
			SubscriberID:  "subscriber-1",
			Type:          models.StepInApp,
			Step: models.StepDefinition{
				ID:       "step-in-app",
				Type:     models.StepInApp,
				Template: &models.MessageTemplate{Content: "You have a new task"},
				Active:   true,
			},
		},
		Vars: &variables.Context{Subscriber: testSubscriber()},
	}

	err := NewInAppSender(f.deps).Send(context.Background(), dispatch)

	require.NoError(t, err)

	messages, msgErr := f.store.Messages().ByJob(context.Background(), "job-1")
	require.NoError(t, msgErr)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageSent, messages[0].Status)
	assert.Equal(t, "You have a new task", messages[0].Content)
}

func TestRegistry_UnknownStepType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.For(models.StepCustom)

	require.Error(t, err)
	assert.Equal(t, fmt.Sprintf("step type '%s' has no registered sender", models.StepCustom), err.Error())
}
