package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// ExecutionDetailRepository stores the append-only audit trail.
type ExecutionDetailRepository struct {
	db *sql.DB
}

func (r *ExecutionDetailRepository) Append(ctx context.Context, detail *models.ExecutionDetail) error {
	if detail.ID == "" {
		detail.ID = uuid.New().String()
	}

	detail.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO execution_details (
			id, job_id, message_id, transaction_id, environment_id, organization_id,
			workflow_id, subscriber_id, provider_id, channel, detail, source, status,
			raw, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		detail.ID, detail.JobID, detail.MessageID, detail.TransactionID, detail.EnvironmentID, detail.OrganizationID,
		detail.WorkflowID, detail.SubscriberID, detail.ProviderID, string(detail.Channel), detail.Detail, string(detail.Source), string(detail.Status),
		detail.Raw, detail.CreatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("Append", "execution_detail", detail.ID, err)
	}

	return nil
}

func (r *ExecutionDetailRepository) ByJob(ctx context.Context, jobID string) ([]*models.ExecutionDetail, error) {
	query := `
		SELECT
			id, job_id, message_id, transaction_id, environment_id, organization_id,
			workflow_id, subscriber_id, provider_id, channel, detail, source, status,
			raw, created_at
		FROM execution_details
		WHERE job_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ByJob", "execution_detail", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.ExecutionDetail

	for rows.Next() {
		var (
			detail    models.ExecutionDetail
			messageID sql.NullString
			provider  sql.NullString
			channel   sql.NullString
			source    string
			status    string
			raw       sql.NullString
		)

		err := rows.Scan(
			&detail.ID, &detail.JobID, &messageID, &detail.TransactionID, &detail.EnvironmentID, &detail.OrganizationID,
			&detail.WorkflowID, &detail.SubscriberID, &provider, &channel, &detail.Detail, &source, &status,
			&raw, &detail.CreatedAt,
		)
		if err != nil {
			return nil, persistence.NewRepositoryError("ByJob", "execution_detail", jobID, err)
		}

		detail.MessageID = messageID.String
		detail.ProviderID = provider.String
		detail.Channel = models.ChannelType(channel.String)
		detail.Source = models.ExecutionDetailSource(source)
		detail.Status = models.ExecutionDetailStatus(status)
		detail.Raw = raw.String

		result = append(result, &detail)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ByJob", "execution_detail", jobID, err)
	}

	return result, nil
}
