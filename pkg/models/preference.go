package models

// PreferenceChannels holds per-channel toggles for one preference layer. A
// nil field means the layer does not set a value for that channel.
type PreferenceChannels struct {
	Email *bool `json:"email,omitempty"`
	SMS   *bool `json:"sms,omitempty"`
	Push  *bool `json:"push,omitempty"`
	Chat  *bool `json:"chat,omitempty"`
	InApp *bool `json:"in_app,omitempty"`
}

// Get returns the layer's value for the channel, if it sets one.
func (p PreferenceChannels) Get(channel ChannelType) (bool, bool) {
	var v *bool

	switch channel {
	case ChannelEmail:
		v = p.Email
	case ChannelSMS:
		v = p.SMS
	case ChannelPush:
		v = p.Push
	case ChannelChat:
		v = p.Chat
	case ChannelInApp:
		v = p.InApp
	}

	if v == nil {
		return false, false
	}

	return *v, true
}

// PreferenceLayer identifies which layer of the preference model decided a
// channel's enablement. The runner maps each layer to a distinct audit detail
// so operators can diagnose "why didn't this send".
type PreferenceLayer string

const (
	LayerWorkflowResource   PreferenceLayer = "workflow_resource"
	LayerSubscriberWorkflow PreferenceLayer = "subscriber_workflow"
	LayerSubscriberGlobal   PreferenceLayer = "subscriber_global"
	LayerStatelessWorkflow  PreferenceLayer = "stateless_workflow"
)

// SubscriberPreference is a persisted subscriber preference row. WorkflowID
// is empty for the subscriber-global layer.
type SubscriberPreference struct {
	ID           string             `json:"id"`
	SubscriberID string             `json:"subscriber_id" validate:"required"`
	WorkflowID   string             `json:"workflow_id,omitempty"`
	Enabled      *bool              `json:"enabled,omitempty"`
	Channels     PreferenceChannels `json:"channels"`
}
