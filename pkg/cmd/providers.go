package cmd

import (
	"log/slog"

	"github.com/courierhq/courier/pkg/providers"
	"github.com/courierhq/courier/pkg/providers/fcm"
	"github.com/courierhq/courier/pkg/providers/smtp"
	"github.com/courierhq/courier/pkg/providers/twilio"
	"github.com/courierhq/courier/pkg/providers/webhook"
)

// NewProviderRegistry registers the built-in delivery providers.
func NewProviderRegistry(logger *slog.Logger) *providers.Registry {
	registry := providers.NewRegistry()

	registry.RegisterEmail(smtp.NewProvider(logger))
	registry.RegisterSMS(twilio.NewProvider(logger))
	registry.RegisterPush(fcm.NewProvider(logger))
	registry.RegisterChat(webhook.NewProvider(logger))
	registry.RegisterWebhook(webhook.NewProvider(logger))

	return registry
}
