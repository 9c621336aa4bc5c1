package models

import "time"

// JobStatus is the lifecycle state of a step job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
	JobDelayed   JobStatus = "delayed"
	JobMerged    JobStatus = "merged"
)

// Terminal reports whether no further transition is allowed for the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled, JobMerged:
		return true
	default:
		return false
	}
}

// TenantRef identifies the tenant a trigger was issued for.
type TenantRef struct {
	Identifier string `json:"identifier" validate:"required"`
}

// Job is one step of one workflow run for one subscriber. It is created when
// a trigger fans out into steps and mutated by the runner as it progresses.
type Job struct {
	ID             string          `json:"id"              validate:"required"`
	TransactionID  string          `json:"transaction_id"  validate:"required"`
	EnvironmentID  string          `json:"environment_id"  validate:"required"`
	OrganizationID string          `json:"organization_id" validate:"required"`
	WorkflowID     string          `json:"workflow_id"     validate:"required"`
	SubscriberID   string          `json:"subscriber_id"   validate:"required"`
	ActorID        string          `json:"actor_id,omitempty"`
	Tenant         *TenantRef      `json:"tenant,omitempty"`
	Type           StepType        `json:"type"            validate:"required"`
	Step           StepDefinition  `json:"step"`
	Payload        map[string]any  `json:"payload,omitempty"`
	Overrides      Overrides       `json:"overrides,omitempty"`
	Digest         *DigestMetadata `json:"digest,omitempty"`
	// Preferences is the workflow-level preference snapshot carried by
	// stateless executions that have no persisted workflow to read from.
	Preferences *PreferenceChannels `json:"preferences,omitempty"`
	ProviderID  string              `json:"provider_id,omitempty"`
	Status      JobStatus           `json:"status"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TriggerOutcome is the per-transaction code acknowledged to the API layer at
// trigger time, independent of async step outcomes.
type TriggerOutcome string

const (
	TriggerProcessed       TriggerOutcome = "processed"
	TriggerNotActive       TriggerOutcome = "trigger_not_active"
	TriggerNoTenantFound   TriggerOutcome = "no_tenant_found"
	TriggerNoWorkflowSteps TriggerOutcome = "no_workflow_steps_defined"
)
