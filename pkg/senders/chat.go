package senders

import (
	"context"
	"fmt"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

// ChatSender dispatches chat steps to every webhook destination the
// subscriber holds for the selected provider. Like push, the step fails only
// when every destination fails.
type ChatSender struct {
	base
}

func NewChatSender(deps Deps) *ChatSender {
	return &ChatSender{base: newBase(deps, "chat_sender")}
}

func (s *ChatSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	integration, err := s.selectIntegration(ctx, dispatch, models.ChannelChat, s.effectiveOverride(job, ""))
	if err != nil {
		return err
	}

	effective := s.effectiveOverride(job, integration.ProviderID)

	destinations := webhookURLsFor(dispatch, integration, effective)
	if len(destinations) == 0 {
		s.audit.Append(ctx, job, execution.Entry{
			Detail:     execution.DetailChatMissingWebhookURL,
			Status:     models.DetailStatusFailed,
			ProviderID: integration.ProviderID,
		})

		return &SendError{Detail: execution.DetailChatMissingWebhookURL}
	}

	_, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	message, err := s.createMessage(ctx, dispatch, integration.ProviderID, &models.Message{
		Content:   content,
		Recipient: destinations[0],
	})
	if err != nil {
		return err
	}

	provider, err := s.providers.Chat(integration.ProviderID)
	if err != nil {
		return s.failMessage(ctx, dispatch, message, err)
	}

	delivered, failures := fanOut(ctx, destinations, func(ctx context.Context, destination string) error {
		_, sendErr := provider.SendChat(ctx, integration.Credentials, providers.ChatMessage{
			WebhookURL: destination,
			Content:    content,
		})

		return sendErr
	})

	if delivered == 0 {
		return s.failMessage(ctx, dispatch, message,
			fmt.Errorf("all %d chat destinations failed", len(destinations)))
	}

	if len(failures) > 0 {
		s.audit.Append(ctx, job, execution.Entry{
			Detail:     execution.DetailProviderError,
			Status:     models.DetailStatusWarning,
			MessageID:  message.ID,
			ProviderID: integration.ProviderID,
			Raw:        map[string]any{"failed_destinations": failures},
		})
	}

	s.completeMessage(ctx, dispatch, message, nil)

	return nil
}

// webhookURLsFor unions the subscriber's chat webhook urls for the selected
// provider with the override url.
func webhookURLsFor(dispatch *Dispatch, integration *models.Integration, effective models.DeliveryOverride) []string {
	var urls []string

	seen := make(map[string]struct{})

	appendURL := func(url string) {
		if url == "" {
			return
		}

		if _, ok := seen[url]; ok {
			return
		}

		seen[url] = struct{}{}
		urls = append(urls, url)
	}

	if subscriber := dispatch.Vars.Subscriber; subscriber != nil {
		for _, settings := range subscriber.Channels {
			if settings.ProviderID != integration.ProviderID {
				continue
			}

			if settings.IntegrationID != "" && settings.IntegrationID != integration.ID {
				continue
			}

			appendURL(settings.Credentials.WebhookURL)
		}
	}

	appendURL(effective.WebhookURL)

	return urls
}
