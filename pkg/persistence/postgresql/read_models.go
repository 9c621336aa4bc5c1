package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// The read-side repositories serve the models the API layer writes and the
// execution core only reads: subscribers, integrations, workflows, tenants,
// preferences and environments.

type SubscriberRepository struct {
	db *sql.DB
}

func (r *SubscriberRepository) BySubscriberID(ctx context.Context, environmentID, subscriberID string) (*models.Subscriber, error) {
	query := `
		SELECT
			id, subscriber_id, environment_id, first_name, last_name, email, phone,
			locale, data, channels, created_at, updated_at
		FROM subscribers
		WHERE environment_id = $1 AND subscriber_id = $2
	`

	var (
		subscriber models.Subscriber
		firstName  sql.NullString
		lastName   sql.NullString
		email      sql.NullString
		phone      sql.NullString
		locale     sql.NullString
		data       []byte
		channels   []byte
	)

	err := r.db.QueryRowContext(ctx, query, environmentID, subscriberID).Scan(
		&subscriber.ID, &subscriber.SubscriberID, &subscriber.EnvironmentID, &firstName, &lastName, &email, &phone,
		&locale, &data, &channels, &subscriber.CreatedAt, &subscriber.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("BySubscriberID", "subscriber", subscriberID, persistence.ErrSubscriberNotFound)
		}

		return nil, persistence.NewRepositoryError("BySubscriberID", "subscriber", subscriberID, err)
	}

	subscriber.FirstName = firstName.String
	subscriber.LastName = lastName.String
	subscriber.Email = email.String
	subscriber.Phone = phone.String
	subscriber.Locale = locale.String

	if err := fromJSON(data, &subscriber.Data); err != nil {
		return nil, err
	}

	if err := fromJSON(channels, &subscriber.Channels); err != nil {
		return nil, err
	}

	return &subscriber, nil
}

type IntegrationRepository struct {
	db *sql.DB
}

const integrationSelect = `
	SELECT
		id, identifier, environment_id, organization_id, provider_id, channel,
		credentials, active, is_primary, priority, conditions, activated_at
	FROM integrations
`

func (r *IntegrationRepository) ByChannel(ctx context.Context, environmentID string, channel models.ChannelType) ([]*models.Integration, error) {
	rows, err := r.db.QueryContext(ctx, integrationSelect+` WHERE environment_id = $1 AND channel = $2`, environmentID, string(channel))
	if err != nil {
		return nil, persistence.NewRepositoryError("ByChannel", "integration", string(channel), err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.Integration

	for rows.Next() {
		integration, err := scanIntegration(rows.Scan)
		if err != nil {
			return nil, persistence.NewRepositoryError("ByChannel", "integration", string(channel), err)
		}

		result = append(result, integration)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewRepositoryError("ByChannel", "integration", string(channel), err)
	}

	return result, nil
}

func (r *IntegrationRepository) ByIdentifier(ctx context.Context, environmentID, identifier string) (*models.Integration, error) {
	row := r.db.QueryRowContext(ctx, integrationSelect+` WHERE environment_id = $1 AND identifier = $2`, environmentID, identifier)

	integration, err := scanIntegration(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByIdentifier", "integration", identifier, persistence.ErrIntegrationNotFound)
		}

		return nil, persistence.NewRepositoryError("ByIdentifier", "integration", identifier, err)
	}

	return integration, nil
}

func scanIntegration(scan func(dest ...any) error) (*models.Integration, error) {
	var (
		integration    models.Integration
		organizationID sql.NullString
		channel        string
		credentials    []byte
		conditions     []byte
	)

	err := scan(
		&integration.ID, &integration.Identifier, &integration.EnvironmentID, &organizationID, &integration.ProviderID, &channel,
		&credentials, &integration.Active, &integration.Primary, &integration.Priority, &conditions, &integration.ActivatedAt,
	)
	if err != nil {
		return nil, err
	}

	integration.OrganizationID = organizationID.String
	integration.Channel = models.ChannelType(channel)

	if err := fromJSON(credentials, &integration.Credentials); err != nil {
		return nil, err
	}

	if err := fromJSON(conditions, &integration.Conditions); err != nil {
		return nil, err
	}

	return &integration, nil
}

type WorkflowRepository struct {
	db *sql.DB
}

func (r *WorkflowRepository) ByID(ctx context.Context, environmentID, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id, environment_id, organization_id, name, active, critical, steps,
			preference_settings, created_at, updated_at
		FROM workflows
		WHERE environment_id = $1 AND id = $2
	`

	var (
		workflow       models.Workflow
		organizationID sql.NullString
		steps          []byte
		settings       []byte
	)

	err := r.db.QueryRowContext(ctx, query, environmentID, id).Scan(
		&workflow.ID, &workflow.EnvironmentID, &organizationID, &workflow.Name, &workflow.Active, &workflow.Critical, &steps,
		&settings, &workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByID", "workflow", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewRepositoryError("ByID", "workflow", id, err)
	}

	workflow.OrganizationID = organizationID.String

	if err := fromJSON(steps, &workflow.Steps); err != nil {
		return nil, err
	}

	if err := fromJSON(settings, &workflow.PreferenceSettings); err != nil {
		return nil, err
	}

	return &workflow, nil
}

type TenantRepository struct {
	db *sql.DB
}

func (r *TenantRepository) ByIdentifier(ctx context.Context, environmentID, identifier string) (*models.Tenant, error) {
	query := `
		SELECT id, identifier, name, environment_id, data, created_at, updated_at
		FROM tenants
		WHERE environment_id = $1 AND identifier = $2
	`

	var (
		tenant models.Tenant
		name   sql.NullString
		data   []byte
	)

	err := r.db.QueryRowContext(ctx, query, environmentID, identifier).Scan(
		&tenant.ID, &tenant.Identifier, &name, &tenant.EnvironmentID, &data, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByIdentifier", "tenant", identifier, persistence.ErrTenantNotFound)
		}

		return nil, persistence.NewRepositoryError("ByIdentifier", "tenant", identifier, err)
	}

	tenant.Name = name.String

	if err := fromJSON(data, &tenant.Data); err != nil {
		return nil, err
	}

	return &tenant, nil
}

type PreferenceRepository struct {
	db *sql.DB
}

const preferenceSelect = `
	SELECT id, subscriber_id, workflow_id, enabled, channels
	FROM subscriber_preferences
`

func (r *PreferenceRepository) SubscriberWorkflow(ctx context.Context, environmentID, subscriberID, workflowID string) (*models.SubscriberPreference, error) {
	if workflowID == "" {
		return nil, persistence.NewRepositoryError("SubscriberWorkflow", "preference", subscriberID, persistence.ErrPreferenceNotFound)
	}

	row := r.db.QueryRowContext(ctx, preferenceSelect+` WHERE environment_id = $1 AND subscriber_id = $2 AND workflow_id = $3`,
		environmentID, subscriberID, workflowID)

	return scanPreference("SubscriberWorkflow", subscriberID, row.Scan)
}

func (r *PreferenceRepository) SubscriberGlobal(ctx context.Context, environmentID, subscriberID string) (*models.SubscriberPreference, error) {
	row := r.db.QueryRowContext(ctx, preferenceSelect+` WHERE environment_id = $1 AND subscriber_id = $2 AND workflow_id = ''`,
		environmentID, subscriberID)

	return scanPreference("SubscriberGlobal", subscriberID, row.Scan)
}

func scanPreference(op, subscriberID string, scan func(dest ...any) error) (*models.SubscriberPreference, error) {
	var (
		preference models.SubscriberPreference
		enabled    sql.NullBool
		channels   []byte
	)

	err := scan(&preference.ID, &preference.SubscriberID, &preference.WorkflowID, &enabled, &channels)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError(op, "preference", subscriberID, persistence.ErrPreferenceNotFound)
		}

		return nil, persistence.NewRepositoryError(op, "preference", subscriberID, err)
	}

	if enabled.Valid {
		preference.Enabled = &enabled.Bool
	}

	if err := fromJSON(channels, &preference.Channels); err != nil {
		return nil, err
	}

	return &preference, nil
}

type EnvironmentRepository struct {
	db *sql.DB
}

func (r *EnvironmentRepository) ByID(ctx context.Context, id string) (*models.Environment, error) {
	query := `SELECT id, name, organization_id, dns FROM environments WHERE id = $1`

	var (
		environment    models.Environment
		name           sql.NullString
		organizationID sql.NullString
		dns            []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&environment.ID, &name, &organizationID, &dns)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRepositoryError("ByID", "environment", id, persistence.ErrEnvironmentNotFound)
		}

		return nil, persistence.NewRepositoryError("ByID", "environment", id, err)
	}

	environment.Name = name.String
	environment.OrganizationID = organizationID.String

	if err := fromJSON(dns, &environment.DNS); err != nil {
		return nil, err
	}

	return &environment, nil
}
