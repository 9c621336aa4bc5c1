package senders

import (
	"context"
	"errors"
	"fmt"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/providers"
)

// PushSender dispatches push steps once per device token across every
// provider channel the subscriber holds: a subscriber with tokens on two
// active integrations gets one message per channel, each fanned out over its
// tokens. The step fails only when every token on every channel fails;
// partial failure leaves the delivered channels sent with a warning trail.
type PushSender struct {
	base
}

func NewPushSender(deps Deps) *PushSender {
	return &PushSender{base: newBase(deps, "push_sender")}
}

// channelTarget pairs one qualified integration with the tokens it delivers
// to.
type channelTarget struct {
	integration *models.Integration
	tokens      []string
}

func (s *PushSender) Send(ctx context.Context, dispatch *Dispatch) error {
	job := dispatch.Job

	candidates, err := s.selectIntegrations(ctx, dispatch, models.ChannelPush, s.effectiveOverride(job, ""))
	if err != nil {
		return err
	}

	targets := s.channelTargets(dispatch, candidates)
	if len(targets) == 0 {
		detail := execution.DetailPushMissingDeviceTokens
		if !subscriberHoldsPushChannel(dispatch, candidates) {
			detail = execution.DetailSubscriberNoActiveChannel
		}

		s.audit.Append(ctx, job, execution.Entry{
			Detail:     detail,
			Status:     models.DetailStatusFailed,
			ProviderID: candidates[0].ProviderID,
		})

		return &SendError{Detail: detail}
	}

	title, content, err := s.renderContent(ctx, dispatch)
	if err != nil {
		return err
	}

	if title == "" && job.Step.Template != nil {
		title = job.Step.Template.Title
	}

	var (
		delivered          int
		channelsWithErrors int
		lastErr            error
	)

	for _, target := range targets {
		sent, sendErr := s.sendChannel(ctx, dispatch, target, title, content)
		if sendErr != nil {
			var deliveryErr *SendError
			if !errors.As(sendErr, &deliveryErr) {
				return sendErr
			}

			channelsWithErrors++
			lastErr = sendErr

			continue
		}

		delivered += sent
	}

	if channelsWithErrors > 0 {
		s.logger.WarnContext(ctx, "Push delivery failed on some provider channels",
			"job_id", job.ID, "channels_with_errors", channelsWithErrors, "channels", len(targets))
	}

	if delivered == 0 {
		return lastErr
	}

	return nil
}

// channelTargets resolves the token set of every qualified integration.
// Override tokens ride on the primary integration only, so synthesized
// targets are not duplicated across providers.
func (s *PushSender) channelTargets(dispatch *Dispatch, candidates []*models.Integration) []channelTarget {
	var targets []channelTarget

	for i, integration := range candidates {
		effective := s.effectiveOverride(dispatch.Job, integration.ProviderID)
		if i > 0 {
			effective.DeviceTokens = nil
		}

		tokens := deviceTokensFor(dispatch, integration, effective)
		if len(tokens) == 0 {
			continue
		}

		targets = append(targets, channelTarget{integration: integration, tokens: tokens})
	}

	return targets
}

// sendChannel delivers one provider channel: its own message record, a
// bounded fan-out over its tokens, and its own success or failure accounting.
func (s *PushSender) sendChannel(ctx context.Context, dispatch *Dispatch, target channelTarget, title, content string) (int, error) {
	integration := target.integration
	effective := s.effectiveOverride(dispatch.Job, integration.ProviderID)

	message, err := s.createMessage(ctx, dispatch, integration.ProviderID, &models.Message{
		Subject:      title,
		Content:      content,
		DeviceTokens: target.tokens,
	})
	if err != nil {
		return 0, err
	}

	provider, err := s.providers.Push(integration.ProviderID)
	if err != nil {
		return 0, s.failMessage(ctx, dispatch, message, err)
	}

	delivered, failures := fanOut(ctx, target.tokens, func(ctx context.Context, token string) error {
		_, sendErr := provider.SendPush(ctx, integration.Credentials, providers.PushMessage{
			Token: token,
			Title: title,
			Body:  content,
			Data:  effective.Data,
		})

		return sendErr
	})

	if delivered == 0 {
		return 0, s.failMessage(ctx, dispatch, message,
			fmt.Errorf("all %d device tokens failed", len(target.tokens)))
	}

	if len(failures) > 0 {
		s.audit.Append(ctx, dispatch.Job, execution.Entry{
			Detail:     execution.DetailProviderError,
			Status:     models.DetailStatusWarning,
			MessageID:  message.ID,
			ProviderID: integration.ProviderID,
			Raw:        map[string]any{"failed_tokens": failures},
		})
	}

	s.completeMessage(ctx, dispatch, message, nil)

	return delivered, nil
}

// subscriberHoldsPushChannel reports whether any subscriber channel setting
// targets one of the qualified integrations.
func subscriberHoldsPushChannel(dispatch *Dispatch, candidates []*models.Integration) bool {
	subscriber := dispatch.Vars.Subscriber
	if subscriber == nil {
		return false
	}

	for _, integration := range candidates {
		for _, settings := range subscriber.Channels {
			if settings.ProviderID != integration.ProviderID {
				continue
			}

			if settings.IntegrationID != "" && settings.IntegrationID != integration.ID {
				continue
			}

			return true
		}
	}

	return false
}

// deviceTokensFor unions the subscriber's tokens for the integration's
// provider with override tokens, preserving first-seen order.
func deviceTokensFor(dispatch *Dispatch, integration *models.Integration, effective models.DeliveryOverride) []string {
	var tokens []string

	seen := make(map[string]struct{})

	appendToken := func(token string) {
		if token == "" {
			return
		}

		if _, ok := seen[token]; ok {
			return
		}

		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}

	if subscriber := dispatch.Vars.Subscriber; subscriber != nil {
		for _, settings := range subscriber.Channels {
			if settings.ProviderID != integration.ProviderID {
				continue
			}

			if settings.IntegrationID != "" && settings.IntegrationID != integration.ID {
				continue
			}

			for _, token := range settings.Credentials.DeviceTokens {
				appendToken(token)
			}
		}
	}

	for _, token := range effective.DeviceTokens {
		appendToken(token)
	}

	return tokens
}
