package senders

import (
	"context"

	"github.com/courierhq/courier/pkg/models"
)

// InAppSender materializes in-app steps as feed messages. Delivery is the
// message record itself; no external provider is involved, but an active
// in_app integration must still exist for the environment.
type InAppSender struct {
	base
}

func NewInAppSender(deps Deps) *InAppSender {
	return &InAppSender{base: newBase(deps, "in_app_sender")}
}

func (s *InAppSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	integration, err := s.selectIntegration(ctx, dispatch, models.ChannelInApp, s.effectiveOverride(job, ""))
	if err != nil {
		return err
	}

	subject, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	message, err := s.createMessage(ctx, dispatch, integration.ProviderID, &models.Message{
		Subject:   subject,
		Content:   content,
		Recipient: job.SubscriberID,
	})
	if err != nil {
		return err
	}

	if cta := ctaOf(job); cta != nil {
		message.Overrides = map[string]any{"cta": cta}
	}

	s.completeMessage(ctx, dispatch, message, nil)

	return nil
}

func ctaOf(job *models.Job) map[string]any {
	if job.Step.Template == nil {
		return nil
	}

	return job.Step.Template.CTA
}
