package senders

import (
	"context"
	"fmt"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

// EmailSender dispatches email steps.
type EmailSender struct {
	base
}

func NewEmailSender(deps Deps) *EmailSender {
	return &EmailSender{base: newBase(deps, "email_sender")}
}

func (s *EmailSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	integration, err := s.selectIntegration(ctx, dispatch, models.ChannelEmail, s.effectiveOverride(job, ""))
	if err != nil {
		return err
	}

	effective := s.effectiveOverride(job, integration.ProviderID)

	recipients := recipientsFor(dispatch, effective)
	if len(recipients) == 0 {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailSubscriberMissingEmail,
			Status: models.DetailStatusFailed,
		})

		return &SendError{Detail: execution.DetailSubscriberMissingEmail}
	}

	subject, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	replyTo := s.resolveReplyTo(ctx, dispatch, effective)

	from := effective.From
	if from == "" {
		from = integration.Credentials.From
	}

	senderName := effective.SenderName
	if senderName == "" {
		senderName = integration.Credentials.SenderName
	}

	message, err := s.createMessage(ctx, dispatch, integration.ProviderID, &models.Message{
		Subject:   subject,
		Content:   content,
		Recipient: recipients[0],
	})
	if err != nil {
		return err
	}

	provider, err := s.providers.Email(integration.ProviderID)
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	receipt, err := provider.SendEmail(ctx, integration.Credentials, providers.EmailMessage{
		From:       from,
		SenderName: senderName,
		To:         recipients,
		ReplyTo:    replyTo,
		Subject:    subject,
		Body:       content,
		Headers:    effective.Headers,
	})
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	s.completeMessage(ctx, dispatch, message, receipt)

	return nil
}

// resolveReplyTo picks the reply-to address. An explicit override wins; a
// reply callback derives one from the environment's inbound-parse domain. A
// callback that cannot be honored downgrades to a warning, never a failure.
func (s *EmailSender) resolveReplyTo(ctx context.Context, dispatch *Dispatch, effective models.DeliveryOverride) string {
	if effective.ReplyTo != "" {
		return effective.ReplyTo
	}

	job := dispatch.Job

	callback := job.Step.ReplyCallback
	if callback == nil || !callback.Active {
		return ""
	}

	if callback.URL == "" {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailReplyCallbackMissingURL,
			Status: models.DetailStatusWarning,
		})

		return ""
	}

	var dns *models.EnvironmentDNS
	if dispatch.Environment != nil {
		dns = dispatch.Environment.DNS
	}

	if dns == nil || !dns.MXRecordConfigured {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailReplyCallbackMissingMXRecord,
			Status: models.DetailStatusWarning,
		})

		return ""
	}

	if dns.InboundParseDomain == "" {
		s.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailReplyCallbackMissingMXDomain,
			Status: models.DetailStatusWarning,
		})

		return ""
	}

	return fmt.Sprintf("parse+%s@%s", job.TransactionID, dns.InboundParseDomain)
}

// recipientsFor unions the override recipients with the subscriber's email.
func recipientsFor(dispatch *Dispatch, effective models.DeliveryOverride) []string {
	recipients := append([]string(nil), effective.To...)

	subscriber := dispatch.Vars.Subscriber
	if subscriber == nil || subscriber.Email == "" {
		return recipients
	}

	for _, existing := range recipients {
		if existing == subscriber.Email {
			return recipients
		}
	}

	return append(recipients, subscriber.Email)
}
