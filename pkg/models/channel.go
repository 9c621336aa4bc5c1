// Package models defines the core domain models for notification step execution.
package models

// ChannelType is a delivery medium a message can be sent through.
type ChannelType string

const (
	ChannelEmail ChannelType = "email"
	ChannelSMS   ChannelType = "sms"
	ChannelPush  ChannelType = "push"
	ChannelChat  ChannelType = "chat"
	ChannelInApp ChannelType = "in_app"
)

// StepType is the kind of workflow step a job executes.
type StepType string

const (
	StepTrigger StepType = "trigger"
	StepEmail   StepType = "email"
	StepSMS     StepType = "sms"
	StepPush    StepType = "push"
	StepChat    StepType = "chat"
	StepInApp   StepType = "in_app"
	StepCustom  StepType = "custom"
	StepDigest  StepType = "digest"
	StepDelay   StepType = "delay"
)

var stepChannels = map[StepType]ChannelType{
	StepEmail: ChannelEmail,
	StepSMS:   ChannelSMS,
	StepPush:  ChannelPush,
	StepChat:  ChannelChat,
	StepInApp: ChannelInApp,
}

// Channel returns the delivery channel for deliverable step types.
func (t StepType) Channel() (ChannelType, bool) {
	channel, ok := stepChannels[t]

	return channel, ok
}

// IsDeliverable reports whether the step type dispatches to a channel.
// Anything else is an action step and is never gated by preferences.
func (t StepType) IsDeliverable() bool {
	_, ok := stepChannels[t]

	return ok
}
