// Package postgresql provides the PostgreSQL persistence implementation for
// jobs, messages, the audit trail and the read-side models.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/persistence/sqlbase"
)

type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	jobs         *JobRepository
	messages     *MessageRepository
	details      *ExecutionDetailRepository
	subscribers  *SubscriberRepository
	integrations *IntegrationRepository
	workflows    *WorkflowRepository
	tenants      *TenantRepository
	preferences  *PreferenceRepository
	environments *EnvironmentRepository
}

// NewPersistence opens the database, runs pending migrations and wires the
// repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		jobs:         &JobRepository{db: database},
		messages:     &MessageRepository{db: database},
		details:      &ExecutionDetailRepository{db: database},
		subscribers:  &SubscriberRepository{db: database},
		integrations: &IntegrationRepository{db: database},
		workflows:    &WorkflowRepository{db: database},
		tenants:      &TenantRepository{db: database},
		preferences:  &PreferenceRepository{db: database},
		environments: &EnvironmentRepository{db: database},
	}, nil
}

func (p *Persistence) Jobs() persistence.JobRepository                         { return p.jobs }
func (p *Persistence) Messages() persistence.MessageRepository                 { return p.messages }
func (p *Persistence) ExecutionDetails() persistence.ExecutionDetailRepository { return p.details }
func (p *Persistence) Subscribers() persistence.SubscriberRepository           { return p.subscribers }
func (p *Persistence) Integrations() persistence.IntegrationRepository         { return p.integrations }
func (p *Persistence) Workflows() persistence.WorkflowRepository               { return p.workflows }
func (p *Persistence) Tenants() persistence.TenantRepository                   { return p.tenants }
func (p *Persistence) Preferences() persistence.PreferenceRepository           { return p.preferences }
func (p *Persistence) Environments() persistence.EnvironmentRepository         { return p.environments }

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
