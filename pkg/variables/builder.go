package variables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// Builder loads the subscriber, actor and tenant referenced by a job and
// assembles the variable context.
type Builder struct {
	subscribers persistence.SubscriberRepository
	tenants     persistence.TenantRepository
	audit       *execution.Writer
	logger      *slog.Logger
}

func NewBuilder(
	subscribers persistence.SubscriberRepository,
	tenants persistence.TenantRepository,
	audit *execution.Writer,
	logger *slog.Logger,
) *Builder {
	return &Builder{
		subscribers: subscribers,
		tenants:     tenants,
		audit:       audit,
		logger:      logger.With("module", "variable_builder"),
	}
}

// Build assembles the context for one job. A missing subscriber is a hard
// error; a missing actor is tolerated; a missing tenant is recorded in the
// audit trail and flagged for the runner to surface.
func (b *Builder) Build(ctx context.Context, job *models.Job) (*Context, error) {
	subscriber, err := b.subscribers.BySubscriberID(ctx, job.EnvironmentID, job.SubscriberID)
	if err != nil {
		return nil, fmt.Errorf("subscriber %s not found: %w", job.SubscriberID, err)
	}

	result := &Context{
		Subscriber: subscriber,
		Payload:    job.Payload,
	}

	if job.ActorID != "" {
		actor, err := b.subscribers.BySubscriberID(ctx, job.EnvironmentID, job.ActorID)
		if err != nil {
			b.logger.WarnContext(ctx, "Actor not found, continuing without actor context",
				"actor_id", job.ActorID, "job_id", job.ID)
		} else {
			result.Actor = actor
		}
	}

	err = b.resolveTenant(ctx, job, result)
	if err != nil {
		return nil, err
	}

	if job.Digest != nil && len(job.Digest.Events) > 0 {
		result.Step = StepVariables{
			Digest:     true,
			Events:     job.Digest.Events,
			TotalCount: len(job.Digest.Events),
		}
	}

	return result, nil
}

func (b *Builder) resolveTenant(ctx context.Context, job *models.Job, result *Context) error {
	if job.Tenant == nil || job.Tenant.Identifier == "" {
		return nil
	}

	tenant, err := b.tenants.ByIdentifier(ctx, job.EnvironmentID, job.Tenant.Identifier)
	if err != nil {
		if !errors.Is(err, persistence.ErrTenantNotFound) {
			return fmt.Errorf("failed to load tenant %s: %w", job.Tenant.Identifier, err)
		}

		b.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailTenantNotFound,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"tenant_identifier": job.Tenant.Identifier},
		})
		result.TenantMissing = true

		return nil
	}

	result.Tenant = tenant

	b.audit.Append(ctx, job, execution.Entry{
		Detail: execution.DetailTenantContextSelected,
		Status: models.DetailStatusPending,
		Raw: map[string]any{
			"identifier": tenant.Identifier,
			"name":       tenant.Name,
		},
	})

	return nil
}
