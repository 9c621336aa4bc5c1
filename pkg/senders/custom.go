package senders

import (
	"context"
	"errors"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

// webhookProviderID is the transport custom steps dispatch through.
const webhookProviderID = "webhook"

// CustomSender posts the rendered step output to a destination webhook.
// Custom steps have no channel and no subscriber credentials; the destination
// comes entirely from overrides.
type CustomSender struct {
	base
}

func NewCustomSender(deps Deps) *CustomSender {
	return &CustomSender{base: newBase(deps, "custom_sender")}
}

func (s *CustomSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	effective := s.effectiveOverride(job, webhookProviderID)

	if effective.WebhookURL == "" {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailNotificationError,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"error": "custom step has no webhook url override"},
		})

		return &SendError{Detail: execution.DetailNotificationError, Err: errors.New("custom step has no webhook url override")}
	}

	subject, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"transaction_id": job.TransactionID,
		"workflow_id":    job.WorkflowID,
		"subscriber_id":  job.SubscriberID,
		"step_id":        job.Step.ID,
		"payload":        job.Payload,
	}

	if content != "" {
		payload["content"] = content
	}

	if subject != "" {
		payload["subject"] = subject
	}

	message, err := s.createMessage(ctx, dispatch, webhookProviderID, &models.Message{
		Subject:   subject,
		Content:   content,
		Recipient: effective.WebhookURL,
	})
	if err != nil {
		return err
	}

	provider, err := s.providers.Webhook(webhookProviderID)
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	receipt, err := provider.SendWebhook(ctx, models.IntegrationCredentials{}, providers.WebhookMessage{
		URL:     effective.WebhookURL,
		Payload: payload,
		Headers: effective.Headers,
	})
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	s.completeMessage(ctx, dispatch, message, receipt)

	return nil
}
