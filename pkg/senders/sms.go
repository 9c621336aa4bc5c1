package senders

import (
	"context"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

// SMSSender dispatches sms steps.
type SMSSender struct {
	base
}

func NewSMSSender(deps Deps) *SMSSender {
	return &SMSSender{base: newBase(deps, "sms_sender")}
}

func (s *SMSSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	integration, err := s.selectIntegration(ctx, dispatch, models.ChannelSMS, s.effectiveOverride(job, ""))
	if err != nil {
		return err
	}

	effective := s.effectiveOverride(job, integration.ProviderID)

	recipient := ""
	if len(effective.To) > 0 {
		recipient = effective.To[0]
	} else if dispatch.Vars.Subscriber != nil {
		recipient = dispatch.Vars.Subscriber.Phone
	}

	if recipient == "" {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailSubscriberMissingPhone,
			Status: models.DetailStatusFailed,
		})

		return &SendError{Detail: execution.DetailSubscriberMissingPhone}
	}

	_, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	from := effective.From
	if from == "" {
		from = integration.Credentials.From
	}

	message, err := s.createMessage(ctx, dispatch, integration.ProviderID, &models.Message{
		Content:   content,
		Recipient: recipient,
	})
	if err != nil {
		return err
	}

	provider, err := s.providers.SMS(integration.ProviderID)
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	receipt, err := provider.SendSMS(ctx, integration.Credentials, providers.SMSMessage{
		From: from,
		To:   recipient,
		Body: content,
	})
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	s.completeMessage(ctx, dispatch, message, receipt)

	return nil
}
