package senders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/integrations"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/overrides"
	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/providers"
	"github.com/courierhq/courier/pkg/template"
)

// Deps are the collaborators every channel sender shares.
type Deps struct {
	Selector  *integrations.Selector
	Providers *providers.Registry
	Messages  persistence.MessageRepository
	Audit     *execution.Writer
	Logger    *slog.Logger
}

type base struct {
	selector  *integrations.Selector
	providers *providers.Registry
	messages  persistence.MessageRepository
	audit     *execution.Writer
	logger    *slog.Logger
}

func newBase(deps Deps, module string) base {
	return base{
		selector:  deps.Selector,
		providers: deps.Providers,
		messages:  deps.Messages,
		audit:     deps.Audit,
		logger:    deps.Logger.With("module", module),
	}
}

// selectIntegration resolves the channel integration for the job, writing the
// outcome-specific audit entry when none qualifies.
func (b *base) selectIntegration(ctx context.Context, dispatch *Dispatch, channel models.ChannelType, effective models.DeliveryOverride) (*models.Integration, error) {
	qualified, err := b.selectIntegrations(ctx, dispatch, channel, effective)
	if err != nil {
		return nil, err
	}

	return qualified[0], nil
}

// selectIntegrations resolves every qualifying integration for the channel,
// ranked, writing the outcome-specific audit entry when none qualifies. Push
// dispatches through the whole set; single-destination channels take the
// first.
func (b *base) selectIntegrations(ctx context.Context, dispatch *Dispatch, channel models.ChannelType, effective models.DeliveryOverride) ([]*models.Integration, error) {
	job := dispatch.Job

	query := integrations.Query{
		EnvironmentID: job.EnvironmentID,
		Channel:       channel,
		Identifier:    effective.IntegrationIdentifier,
	}

	qualified, kind, err := b.selector.Qualified(ctx, job, query, dispatch.Vars)
	if err != nil {
		return nil, err
	}

	switch kind {
	case integrations.Found:
		primary := qualified[0]

		if job.Tenant != nil && len(primary.Conditions) > 0 {
			b.audit.Append(ctx, job, execution.Entry{
				Detail:     execution.DetailTenantContextSelected,
				Status:     models.DetailStatusPending,
				ProviderID: primary.ProviderID,
				Raw:        map[string]any{"tenant": job.Tenant.Identifier, "integration": primary.Identifier},
			})
		}

		return qualified, nil
	case integrations.NoTenantMatch:
		b.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailNoTenantMatch,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"tenant": job.Tenant.Identifier, "channel": channel},
		})

		return nil, &SendError{Detail: execution.DetailNoTenantMatch}
	default:
		detail := execution.DetailSubscriberNoActiveIntegration
		if effective.IntegrationIdentifier != "" {
			detail = execution.DetailIntegrationIdentifierNotFound
		}

		b.audit.Append(ctx, job, execution.Entry{
			Detail: detail,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"channel": channel, "identifier": effective.IntegrationIdentifier},
		})

		return nil, &SendError{Detail: detail}
	}
}

// effectiveOverride merges the job's override layers for the selected
// provider; providerID may be empty before selection.
func (b *base) effectiveOverride(job *models.Job, providerID string) models.DeliveryOverride {
	return overrides.ForJob(job, providerID)
}

// renderContent compiles the step template against the variable context.
// Bridge-authored steps carry pre-rendered output and bypass compilation. A
// syntax or missing-variable error is audited and terminal for the job.
func (b *base) renderContent(ctx context.Context, dispatch *Dispatch) (subject, content string, err error) {
	step := dispatch.Job.Step

	if len(step.BridgeOutput) > 0 {
		return stringField(step.BridgeOutput, "subject"), stringField(step.BridgeOutput, "body"), nil
	}

	if step.Template == nil {
		return "", "", nil
	}

	data := dispatch.Vars.TemplateData()

	subject, err = template.Render(step.Template.Subject, data)
	if err == nil {
		content, err = template.Render(step.Template.Content, data)
	}

	if err != nil {
		b.audit.Append(ctx, dispatch.Job, execution.Entry{
			Detail: execution.DetailMessageContentSyntaxError,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"error": err.Error()},
		})

		return "", "", &SendError{Detail: execution.DetailMessageContentSyntaxError, Err: err}
	}

	return subject, content, nil
}

// createMessage persists the pending message record before dispatch.
func (b *base) createMessage(ctx context.Context, dispatch *Dispatch, providerID string, message *models.Message) (*models.Message, error) {
	job := dispatch.Job
	now := time.Now().UTC()

	message.ID = uuid.New().String()
	message.JobID = job.ID
	message.TransactionID = job.TransactionID
	message.EnvironmentID = job.EnvironmentID
	message.OrganizationID = job.OrganizationID
	message.WorkflowID = job.WorkflowID
	message.SubscriberID = job.SubscriberID
	message.ProviderID = providerID
	message.Status = models.MessagePending
	message.Payload = job.Payload
	message.CreatedAt = now
	message.UpdatedAt = now

	if channel, ok := job.Type.Channel(); ok {
		message.Channel = channel
	}

	if err := b.messages.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to create message record: %w", err)
	}

	b.audit.Append(ctx, job, execution.Entry{
		Detail:     execution.DetailMessageCreated,
		Status:     models.DetailStatusPending,
		MessageID:  message.ID,
		ProviderID: message.ProviderID,
	})

	return message, nil
}

// completeMessage marks the message sent and audits the success.
func (b *base) completeMessage(ctx context.Context, dispatch *Dispatch, message *models.Message, receipt *providers.Receipt) {
	message.Status = models.MessageSent
	message.UpdatedAt = time.Now().UTC()

	if receipt != nil {
		message.ProviderMessageID = receipt.ProviderMessageID
	}

	if err := b.messages.Update(ctx, message); err != nil {
		b.logger.ErrorContext(ctx, "Failed to mark message sent", "message_id", message.ID, "error", err)
	}

	b.audit.Append(ctx, dispatch.Job, execution.Entry{
		Detail:     execution.DetailMessageSent,
		Status:     models.DetailStatusSuccess,
		MessageID:  message.ID,
		ProviderID: message.ProviderID,
		Raw:        receipt,
	})
}

// failMessage marks the message errored, audits the provider failure and
// returns the terminal SendError.
func (b *base) failMessage(ctx context.Context, dispatch *Dispatch, message *models.Message, sendErr error) error {
	message.Status = models.MessageError
	message.ErrorID = execution.DetailProviderError
	message.ErrorText = sendErr.Error()
	message.UpdatedAt = time.Now().UTC()

	if err := b.messages.Update(ctx, message); err != nil {
		b.logger.ErrorContext(ctx, "Failed to mark message errored", "message_id", message.ID, "error", err)
	}

	b.audit.Append(ctx, dispatch.Job, execution.Entry{
		Detail:     execution.DetailProviderError,
		Status:     models.DetailStatusFailed,
		MessageID:  message.ID,
		ProviderID: message.ProviderID,
		Raw:        map[string]any{"error": sendErr.Error()},
	})

	return &SendError{Detail: execution.DetailProviderError, Err: sendErr}
}

func stringField(data map[string]any, key string) string {
	value, ok := data[key].(string)
	if !ok {
		return ""
	}

	return value
}
