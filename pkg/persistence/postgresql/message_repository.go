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

// MessageRepository handles persisted message database operations.
type MessageRepository struct {
	db *sql.DB
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now

	payload, err := asJSON(message.Payload)
	if err != nil {
		return err
	}

	overrides, err := asJSON(message.Overrides)
	if err != nil {
		return err
	}

	tokens, err := asJSON(message.DeviceTokens)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (
			id, job_id, transaction_id, environment_id, organization_id, workflow_id,
			subscriber_id, channel, provider_id, provider_message_id, status,
			subject, content, recipient, device_tokens, payload, overrides,
			error_id, error_text, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err = r.db.ExecContext(ctx, query,
		message.ID, message.JobID, message.TransactionID, message.EnvironmentID, message.OrganizationID, message.WorkflowID,
		message.SubscriberID, string(message.Channel), message.ProviderID, message.ProviderMessageID, string(message.Status),
		message.Subject, message.Content, message.Recipient, tokens, payload, overrides,
		message.ErrorID, message.ErrorText, message.CreatedAt, message.UpdatedAt,
	)
	if err != nil {
		return persistence.NewRepositoryError("Create", "message", message.ID, err)
	}

	return nil
}

func (r *MessageRepository) Update(ctx context.Context, message *models.Message) error {
	message.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE messages SET
			provider_message_id = $1, status = $2, subject = $3, content = $4,
			recipient = $5, error_id = $6, error_text = $7, updated_at = $8
		WHERE id = $9
	`

	result, err := r.db.ExecContext(ctx, query,
		message.ProviderMessageID, string(message.Status), message.Subject, message.Content,
		message.Recipient, message.ErrorID, message.ErrorText, message.UpdatedAt, message.ID,
	)
	if err != nil {
		return persistence.NewRepositoryError("Update", "message", message.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRepositoryError("Update", "message", message.ID, err)
	}

	if affected == 0 {
		return persistence.NewRepositoryError("Update", "message", message.ID, persistence.ErrMessageNotFound)
	}

	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, messageSelect+` WHERE id = $1`, id)

	message, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByID", "message", id, persistence.ErrMessageNotFound)
		}

		return nil, persistence.NewRepositoryError("ByID", "message", id, err)
	}

	return message, nil
}

func (r *MessageRepository) ByJob(ctx context.Context, jobID string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, messageSelect+` WHERE job_id = $1 ORDER BY created_at`, jobID)
	if err != nil {
		return nil, persistence.NewRepositoryError("ByJob", "message", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Message

	for rows.Next() {
		message, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, persistence.NewRepositoryError("ByJob", "message", jobID, err)
		}

		result = append(result, message)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ByJob", "message", jobID, err)
	}

	return result, nil
}

const messageSelect = `
	SELECT
		id, job_id, transaction_id, environment_id, organization_id, workflow_id,
		subscriber_id, channel, provider_id, provider_message_id, status,
		subject, content, recipient, device_tokens, payload, overrides,
		error_id, error_text, created_at, updated_at
	FROM messages
`

func scanMessage(scan func(dest ...any) error) (*models.Message, error) {
	var (
		message           models.Message
		channel           string
		status            string
		providerMessageID sql.NullString
		subject           sql.NullString
		content           sql.NullString
		recipient         sql.NullString
		errorID           sql.NullString
		errorText         sql.NullString
		tokens            []byte
		payload           []byte
		overrides         []byte
	)

	err := scan(
		&message.ID, &message.JobID, &message.TransactionID, &message.EnvironmentID, &message.OrganizationID, &message.WorkflowID,
		&message.SubscriberID, &channel, &message.ProviderID, &providerMessageID, &status,
		&subject, &content, &recipient, &tokens, &payload, &overrides,
		&errorID, &errorText, &message.CreatedAt, &message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	message.Channel = models.ChannelType(channel)
	message.Status = models.MessageStatus(status)
	message.ProviderMessageID = providerMessageID.String
	message.Subject = subject.String
	message.Content = content.String
	message.Recipient = recipient.String
	message.ErrorID = errorID.String
	message.ErrorText = errorText.String

	if err := fromJSON(tokens, &message.DeviceTokens); err != nil {
		return nil, err
	}

	if err := fromJSON(payload, &message.Payload); err != nil {
		return nil, err
	}

	if err := fromJSON(overrides, &message.Overrides); err != nil {
		return nil, err
	}

	return &message, nil
}
