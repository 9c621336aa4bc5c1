// Package memory provides an in-memory persistence implementation used by
// tests and local development. It mirrors the repository contracts of the
// PostgreSQL implementation without external dependencies.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

type Persistence struct {
	mu sync.RWMutex

	jobs         map[string]*models.Job
	messages     map[string]*models.Message
	details      []*models.ExecutionDetail
	subscribers  map[string]*models.Subscriber // environmentID/subscriberID
	integrations map[string]*models.Integration
	workflows    map[string]*models.Workflow
	tenants      map[string]*models.Tenant // environmentID/identifier
	preferences  []*models.SubscriberPreference
	environments map[string]*models.Environment
}

func NewPersistence() *Persistence {
	return &Persistence{
		jobs:         make(map[string]*models.Job),
		messages:     make(map[string]*models.Message),
		subscribers:  make(map[string]*models.Subscriber),
		integrations: make(map[string]*models.Integration),
		workflows:    make(map[string]*models.Workflow),
		tenants:      make(map[string]*models.Tenant),
		environments: make(map[string]*models.Environment),
	}
}

func scopedKey(environmentID, id string) string {
	return environmentID + "/" + id
}

// Seed helpers used by tests and local development.

func (p *Persistence) AddSubscriber(subscriber *models.Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[scopedKey(subscriber.EnvironmentID, subscriber.SubscriberID)] = subscriber
}

func (p *Persistence) AddIntegration(integration *models.Integration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integrations[integration.ID] = integration
}

func (p *Persistence) AddWorkflow(workflow *models.Workflow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workflows[scopedKey(workflow.EnvironmentID, workflow.ID)] = workflow
}

func (p *Persistence) AddTenant(tenant *models.Tenant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenants[scopedKey(tenant.EnvironmentID, tenant.Identifier)] = tenant
}

func (p *Persistence) AddPreference(preference *models.SubscriberPreference) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preferences = append(p.preferences, preference)
}

func (p *Persistence) AddJob(job *models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := *job
	p.jobs[job.ID] = &copied
}

func (p *Persistence) AddEnvironment(environment *models.Environment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.environments[environment.ID] = environment
}

// Repository accessors.

func (p *Persistence) Jobs() persistence.JobRepository                         { return &jobRepository{p} }
func (p *Persistence) Messages() persistence.MessageRepository                 { return &messageRepository{p} }
func (p *Persistence) ExecutionDetails() persistence.ExecutionDetailRepository { return &detailRepository{p} }
func (p *Persistence) Subscribers() persistence.SubscriberRepository           { return &subscriberRepository{p} }
func (p *Persistence) Integrations() persistence.IntegrationRepository         { return &integrationRepository{p} }
func (p *Persistence) Workflows() persistence.WorkflowRepository               { return &workflowRepository{p} }
func (p *Persistence) Tenants() persistence.TenantRepository                   { return &tenantRepository{p} }
func (p *Persistence) Preferences() persistence.PreferenceRepository           { return &preferenceRepository{p} }
func (p *Persistence) Environments() persistence.EnvironmentRepository         { return &environmentRepository{p} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

type jobRepository struct{ p *Persistence }

func (r *jobRepository) Create(_ context.Context, job *models.Job) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	copied := *job
	r.p.jobs[job.ID] = &copied

	return nil
}

func (r *jobRepository) ByID(_ context.Context, id string) (*models.Job, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	job, ok := r.p.jobs[id]
	if !ok {
		return nil, persistence.NewRepositoryError("ByID", "job", id, persistence.ErrJobNotFound)
	}

	copied := *job

	return &copied, nil
}

func (r *jobRepository) UpdateStatus(_ context.Context, id string, status models.JobStatus, errorText string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	job, ok := r.p.jobs[id]
	if !ok {
		return persistence.NewRepositoryError("UpdateStatus", "job", id, persistence.ErrJobNotFound)
	}

	job.Status = status
	job.Error = errorText
	job.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *jobRepository) ByTransactionAndStep(_ context.Context, transactionID, stepID string) (*models.Job, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, job := range r.p.jobs {
		if job.TransactionID == transactionID && job.Step.ID == stepID {
			copied := *job

			return &copied, nil
		}
	}

	return nil, persistence.NewRepositoryError("ByTransactionAndStep", "job", stepID, persistence.ErrJobNotFound)
}

type messageRepository struct{ p *Persistence }

func (r *messageRepository) Create(_ context.Context, message *models.Message) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	message.CreatedAt = time.Now().UTC()
	message.UpdatedAt = message.CreatedAt

	copied := *message
	r.p.messages[message.ID] = &copied

	return nil
}

func (r *messageRepository) Update(_ context.Context, message *models.Message) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.messages[message.ID]; !ok {
		return persistence.NewRepositoryError("Update", "message", message.ID, persistence.ErrMessageNotFound)
	}

	message.UpdatedAt = time.Now().UTC()
	copied := *message
	r.p.messages[message.ID] = &copied

	return nil
}

func (r *messageRepository) ByID(_ context.Context, id string) (*models.Message, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	message, ok := r.p.messages[id]
	if !ok {
		return nil, persistence.NewRepositoryError("ByID", "message", id, persistence.ErrMessageNotFound)
	}

	copied := *message

	return &copied, nil
}

func (r *messageRepository) ByJob(_ context.Context, jobID string) ([]*models.Message, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var result []*models.Message

	for _, message := range r.p.messages {
		if message.JobID == jobID {
			copied := *message
			result = append(result, &copied)
		}
	}

	return result, nil
}

type detailRepository struct{ p *Persistence }

func (r *detailRepository) Append(_ context.Context, detail *models.ExecutionDetail) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if detail.ID == "" {
		detail.ID = uuid.New().String()
	}

	detail.CreatedAt = time.Now().UTC()

	copied := *detail
	r.p.details = append(r.p.details, &copied)

	return nil
}

func (r *detailRepository) ByJob(_ context.Context, jobID string) ([]*models.ExecutionDetail, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var result []*models.ExecutionDetail

	for _, detail := range r.p.details {
		if detail.JobID == jobID {
			copied := *detail
			result = append(result, &copied)
		}
	}

	return result, nil
}

type subscriberRepository struct{ p *Persistence }

func (r *subscriberRepository) BySubscriberID(_ context.Context, environmentID, subscriberID string) (*models.Subscriber, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	subscriber, ok := r.p.subscribers[scopedKey(environmentID, subscriberID)]
	if !ok {
		return nil, persistence.NewRepositoryError("BySubscriberID", "subscriber", subscriberID, persistence.ErrSubscriberNotFound)
	}

	return subscriber, nil
}

type integrationRepository struct{ p *Persistence }

func (r *integrationRepository) ByChannel(_ context.Context, environmentID string, channel models.ChannelType) ([]*models.Integration, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var result []*models.Integration

	for _, integration := range r.p.integrations {
		if integration.EnvironmentID == environmentID && integration.Channel == channel {
			result = append(result, integration)
		}
	}

	return result, nil
}

func (r *integrationRepository) ByIdentifier(_ context.Context, environmentID, identifier string) (*models.Integration, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, integration := range r.p.integrations {
		if integration.EnvironmentID == environmentID && integration.Identifier == identifier {
			return integration, nil
		}
	}

	return nil, persistence.NewRepositoryError("ByIdentifier", "integration", identifier, persistence.ErrIntegrationNotFound)
}

type workflowRepository struct{ p *Persistence }

func (r *workflowRepository) ByID(_ context.Context, environmentID, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflow, ok := r.p.workflows[scopedKey(environmentID, id)]
	if !ok {
		return nil, persistence.NewRepositoryError("ByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

type tenantRepository struct{ p *Persistence }

func (r *tenantRepository) ByIdentifier(_ context.Context, environmentID, identifier string) (*models.Tenant, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	tenant, ok := r.p.tenants[scopedKey(environmentID, identifier)]
	if !ok {
		return nil, persistence.NewRepositoryError("ByIdentifier", "tenant", identifier, persistence.ErrTenantNotFound)
	}

	return tenant, nil
}

type preferenceRepository struct{ p *Persistence }

func (r *preferenceRepository) SubscriberWorkflow(_ context.Context, _, subscriberID, workflowID string) (*models.SubscriberPreference, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, preference := range r.p.preferences {
		if preference.SubscriberID == subscriberID && preference.WorkflowID == workflowID && workflowID != "" {
			return preference, nil
		}
	}

	return nil, persistence.NewRepositoryError("SubscriberWorkflow", "preference", subscriberID, persistence.ErrPreferenceNotFound)
}

func (r *preferenceRepository) SubscriberGlobal(_ context.Context, _, subscriberID string) (*models.SubscriberPreference, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, preference := range r.p.preferences {
		if preference.SubscriberID == subscriberID && preference.WorkflowID == "" {
			return preference, nil
		}
	}

	return nil, persistence.NewRepositoryError("SubscriberGlobal", "preference", subscriberID, persistence.ErrPreferenceNotFound)
}

type environmentRepository struct{ p *Persistence }

func (r *environmentRepository) ByID(_ context.Context, id string) (*models.Environment, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	environment, ok := r.p.environments[id]
	if !ok {
		return nil, persistence.NewRepositoryError("ByID", "environment", id, persistence.ErrEnvironmentNotFound)
	}

	return environment, nil
}
