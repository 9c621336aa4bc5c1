package providers

import "fmt"

// Registry holds the registered transports per channel, keyed by provider id.
type Registry struct {
	email   map[string]EmailProvider
	sms     map[string]SMSProvider
	push    map[string]PushProvider
	chat    map[string]ChatProvider
	webhook map[string]WebhookProvider
}

func NewRegistry() *Registry {
	return &Registry{
		email:   make(map[string]EmailProvider),
		sms:     make(map[string]SMSProvider),
		push:    make(map[string]PushProvider),
		chat:    make(map[string]ChatProvider),
		webhook: make(map[string]WebhookProvider),
	}
}

func (r *Registry) RegisterEmail(provider EmailProvider) {
	r.email[provider.ID()] = provider
}

func (r *Registry) RegisterSMS(provider SMSProvider) {
	r.sms[provider.ID()] = provider
}

func (r *Registry) RegisterPush(provider PushProvider) {
	r.push[provider.ID()] = provider
}

func (r *Registry) RegisterChat(provider ChatProvider) {
	r.chat[provider.ID()] = provider
}

func (r *Registry) RegisterWebhook(provider WebhookProvider) {
	r.webhook[provider.ID()] = provider
}

func (r *Registry) Email(providerID string) (EmailProvider, error) {
	provider, ok := r.email[providerID]
	if !ok {
		return nil, fmt.Errorf("email provider '%s' not registered", providerID)
	}

	return provider, nil
}

func (r *Registry) SMS(providerID string) (SMSProvider, error) {
	provider, ok := r.sms[providerID]
	if !ok {
		return nil, fmt.Errorf("sms provider '%s' not registered", providerID)
	}

	return provider, nil
}

func (r *Registry) Push(providerID string) (PushProvider, error) {
	provider, ok := r.push[providerID]
	if !ok {
		return nil, fmt.Errorf("push provider '%s' not registered", providerID)
	}

	return provider, nil
}

func (r *Registry) Chat(providerID string) (ChatProvider, error) {
	provider, ok := r.chat[providerID]
	if !ok {
		return nil, fmt.Errorf("chat provider '%s' not registered", providerID)
	}

	return provider, nil
}

func (r *Registry) Webhook(providerID string) (WebhookProvider, error) {
	provider, ok := r.webhook[providerID]
	if !ok {
		return nil, fmt.Errorf("webhook provider '%s' not registered", providerID)
	}

	return provider, nil
}
