// Package execution writes the append-only audit trail describing every
// decision and outcome of a step job.
package execution

// Detail codes recorded in the audit trail. These are stable identifiers
// consumed by activity feeds; renaming one is a breaking change.
const (
	DetailStartSending    = "Start sending message"
	DetailStartDigesting  = "Start digesting"
	DetailFilterSteps     = "Step was filtered based on filter conditions"
	DetailSkipConditions  = "Step was skipped based on skip conditions"
	DetailMessageCreated  = "Message created"
	DetailMessageSent     = "Message sent"
	DetailMessageContentSyntaxError = "Message content could not be generated"

	DetailProviderError     = "Unexpected provider error"
	DetailNotificationError = "Notification could not be sent"

	DetailSubscriberNoActiveIntegration = "Subscriber does not have an active integration"
	DetailSubscriberNoActiveChannel     = "Subscriber does not have an active channel"
	DetailSubscriberMissingEmail        = "Subscriber does not have an email address"
	DetailSubscriberMissingPhone        = "Subscriber does not have a phone number"
	DetailPushMissingDeviceTokens       = "Subscriber credentials are missing device tokens"
	DetailChatMissingWebhookURL         = "Subscriber credentials are missing a webhook url"
	DetailIntegrationIdentifierNotFound = "No active integration matches the override identifier"

	DetailTenantContextSelected = "Tenant context selected"
	DetailTenantNotFound        = "Tenant could not be found"
	DetailNoTenantMatch         = "No integration conditions matched the tenant"

	DetailFilteredByWorkflowResourcePreferences   = "Step was filtered by workflow resource preferences"
	DetailFilteredBySubscriberWorkflowPreferences = "Step was filtered by subscriber workflow preferences"
	DetailFilteredBySubscriberGlobalPreferences   = "Step was filtered by subscriber global preferences"
	DetailFilteredByStatelessWorkflowPreferences  = "Step was filtered by stateless workflow preferences"

	DetailDigestWindowOpened   = "Digest window opened"
	DetailDigestMerged         = "Event merged into an open digest window"
	DetailDigestFilteredEvent  = "Event was filtered out of the digest"
	DetailDigestTriggeredEvent = "Digest window flushed"
	DetailDelayScheduled       = "Delayed delivery scheduled"

	DetailRuleEvaluationFailed = "Rule evaluation failed"
	DetailPayloadSchemaInvalid = "Payload failed schema validation"

	DetailWebhookFilterRetry        = "Webhook filter request failed, retrying"
	DetailWebhookFilterFailedClosed = "Webhook filter failed on all attempts, condition treated as unmet"

	DetailReplyCallbackMissingURL       = "Reply callback is active but has no callback url"
	DetailReplyCallbackMissingMXRecord  = "Inbound reply is not available, MX record is not configured"
	DetailReplyCallbackMissingMXDomain  = "Inbound reply is not available, inbound parse domain is not configured"
)
