// Package persistence provides the data storage abstraction for the
// execution core: jobs, messages, the audit trail and the read-side models
// (subscribers, workflows, integrations, tenants, preferences).
package persistence

import (
	"context"

	"github.com/courierhq/courier/pkg/models"
)

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	ByID(ctx context.Context, id string) (*models.Job, error)
	UpdateStatus(ctx context.Context, id string, status models.JobStatus, errorText string) error
	// ByTransactionAndStep returns the job of a transaction for one step id,
	// used by previous-step filters to read prior outcomes from durable state.
	ByTransactionAndStep(ctx context.Context, transactionID, stepID string) (*models.Job, error)
}

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	Update(ctx context.Context, message *models.Message) error
	ByID(ctx context.Context, id string) (*models.Message, error)
	ByJob(ctx context.Context, jobID string) ([]*models.Message, error)
}

// ExecutionDetailRepository is append-only; entries are never mutated.
type ExecutionDetailRepository interface {
	Append(ctx context.Context, detail *models.ExecutionDetail) error
	ByJob(ctx context.Context, jobID string) ([]*models.ExecutionDetail, error)
}

type SubscriberRepository interface {
	BySubscriberID(ctx context.Context, environmentID, subscriberID string) (*models.Subscriber, error)
}

type IntegrationRepository interface {
	ByChannel(ctx context.Context, environmentID string, channel models.ChannelType) ([]*models.Integration, error)
	ByIdentifier(ctx context.Context, environmentID, identifier string) (*models.Integration, error)
}

type WorkflowRepository interface {
	ByID(ctx context.Context, environmentID, id string) (*models.Workflow, error)
}

type TenantRepository interface {
	ByIdentifier(ctx context.Context, environmentID, identifier string) (*models.Tenant, error)
}

type PreferenceRepository interface {
	// SubscriberWorkflow returns the subscriber's preference row for one
	// workflow, ErrPreferenceNotFound when the subscriber never set one.
	SubscriberWorkflow(ctx context.Context, environmentID, subscriberID, workflowID string) (*models.SubscriberPreference, error)
	SubscriberGlobal(ctx context.Context, environmentID, subscriberID string) (*models.SubscriberPreference, error)
}

type EnvironmentRepository interface {
	ByID(ctx context.Context, id string) (*models.Environment, error)
}

// Persistence bundles the repositories behind one connection lifecycle.
type Persistence interface {
	Jobs() JobRepository
	Messages() MessageRepository
	ExecutionDetails() ExecutionDetailRepository
	Subscribers() SubscriberRepository
	Integrations() IntegrationRepository
	Workflows() WorkflowRepository
	Tenants() TenantRepository
	Preferences() PreferenceRepository
	Environments() EnvironmentRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
