package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// JobRepository handles step job database operations.
type JobRepository struct {
	db *sql.DB
}

func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	tenant, err := asJSON(job.Tenant)
	if err != nil {
		return err
	}

	step, err := asJSON(job.Step)
	if err != nil {
		return err
	}

	payload, err := asJSON(job.Payload)
	if err != nil {
		return err
	}

	overrides, err := asJSON(job.Overrides)
	if err != nil {
		return err
	}

	digest, err := asJSON(job.Digest)
	if err != nil {
		return err
	}

	preferences, err := asJSON(job.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, transaction_id, environment_id, organization_id, workflow_id,
			subscriber_id, actor_id, tenant, type, step, payload, overrides,
			digest, preferences, provider_id, status, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.TransactionID, job.EnvironmentID, job.OrganizationID, job.WorkflowID,
		job.SubscriberID, job.ActorID, tenant, string(job.Type), step, payload, overrides,
		digest, preferences, job.ProviderID, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("Create", "job", job.ID, err)
	}

	return nil
}

func (r *JobRepository) ByID(ctx context.Context, id string) (*models.Job, error) {
	query := jobSelect + ` WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByID", "job", id, persistence.ErrJobNotFound)
		}

		return nil, persistence.NewRepositoryError("ByID", "job", id, err)
	}

	return job, nil
}

func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status models.JobStatus, errorText string) error {
	query := `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, string(status), errorText, time.Now().UTC(), id)
	if err != nil {
		return persistence.NewRepositoryError("UpdateStatus", "job", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError("UpdateStatus", "job", id, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError("UpdateStatus", "job", id, persistence.ErrJobNotFound)
	}

	return nil
}

func (r *JobRepository) ByTransactionAndStep(ctx context.Context, transactionID, stepID string) (*models.Job, error) {
	query := jobSelect + ` WHERE transaction_id = $1 AND step->>'id' = $2`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, transactionID, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByTransactionAndStep", "job", stepID, persistence.ErrJobNotFound)
		}

		return nil, persistence.NewRepositoryError("ByTransactionAndStep", "job", stepID, err)
	}

	return job, nil
}

const jobSelect = `
	SELECT
		id, transaction_id, environment_id, organization_id, workflow_id,
		subscriber_id, actor_id, tenant, type, step, payload, overrides,
		digest, preferences, provider_id, status, error, created_at, updated_at
	FROM jobs
`

func scanJob(row *sql.Row) (*models.Job, error) {
	var (
		job         models.Job
		jobType     string
		status      string
		actorID     sql.NullString
		providerID  sql.NullString
		errorText   sql.NullString
		tenant      []byte
		step        []byte
		payload     []byte
		overrides   []byte
		digest      []byte
		preferences []byte
	)

	err := row.Scan(
		&job.ID, &job.TransactionID, &job.EnvironmentID, &job.OrganizationID, &job.WorkflowID,
		&job.SubscriberID, &actorID, &tenant, &jobType, &step, &payload, &overrides,
		&digest, &preferences, &providerID, &status, &errorText, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = models.StepType(jobType)
	job.Status = models.JobStatus(status)
	job.ActorID = actorID.String
	job.ProviderID = providerID.String
	job.Error = errorText.String

	if err := fromJSON(tenant, &job.Tenant); err != nil {
		return nil, err
	}

	if err := fromJSON(step, &job.Step); err != nil {
		return nil, err
	}

	if err := fromJSON(payload, &job.Payload); err != nil {
		return nil, err
	}

	if err := fromJSON(overrides, &job.Overrides); err != nil {
		return nil, err
	}

	if err := fromJSON(digest, &job.Digest); err != nil {
		return nil, err
	}

	if err := fromJSON(preferences, &job.Preferences); err != nil {
		return nil, err
	}

	return &job, nil
}
