package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/digest"
	"github.com/courierhq/courier/pkg/eventbus"
	"github.com/courierhq/courier/pkg/events"
	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/integrations"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/preferences"
	"github.com/courierhq/courier/pkg/providers"
	"github.com/courierhq/courier/pkg/runner"
	"github.com/courierhq/courier/pkg/senders"
	"github.com/courierhq/courier/pkg/variables"
)

// WorkerManager consumes job events and runs them through the step runner.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	runner   *runner.Runner
	validate *validator.Validate
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	digestStore digest.Store,
	providerRegistry *providers.Registry,
	tracer trace.Tracer,
	logger *slog.Logger,
) *WorkerManager {
	audit := execution.NewWriter(store.ExecutionDetails(), logger)

	previous := runner.NewPreviousStepSource(store.Jobs(), store.Messages())
	evaluator := conditions.NewEvaluator(conditions.NewWebhookClient(logger), previous, audit, logger)

	deps := senders.Deps{
		Selector:  integrations.NewSelector(store.Integrations(), evaluator, logger),
		Providers: providerRegistry,
		Messages:  store.Messages(),
		Audit:     audit,
		Logger:    logger,
	}

	registry := senders.NewRegistry()
	registry.Register(models.StepEmail, senders.NewEmailSender(deps))
	registry.Register(models.StepSMS, senders.NewSMSSender(deps))
	registry.Register(models.StepPush, senders.NewPushSender(deps))
	registry.Register(models.StepChat, senders.NewChatSender(deps))
	registry.Register(models.StepInApp, senders.NewInAppSender(deps))
	registry.Register(models.StepCustom, senders.NewCustomSender(deps))

	jobRunner := runner.NewRunner(
		store,
		variables.NewBuilder(store.Subscribers(), store.Tenants(), audit, logger),
		evaluator,
		preferences.NewResolver(store.Preferences(), audit, logger),
		digest.NewAggregator(digestStore, evaluator, audit, logger),
		registry,
		audit,
		tracer,
		logger,
	)

	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "courier-worker", "worker_id", id),
		eventBus: eventBus,
		runner:   jobRunner,
		validate: validator.New(),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	err := w.eventBus.Handle(events.JobQueuedEvent, w.handleJobQueued)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.DigestWindowDueEvent, w.handleDigestWindowDue)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleJobQueued(ctx context.Context, event any) error {
	queuedEvent, ok := event.(*events.JobQueued)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for JobQueued")

		return nil
	}

	job := queuedEvent.Job
	if job == nil {
		w.logger.ErrorContext(ctx, "Job queued event carries no job", "event_id", queuedEvent.ID)

		return nil
	}

	logger := w.logger.With(
		"job_id", job.ID,
		"transaction_id", job.TransactionID,
		"workflow_id", job.WorkflowID,
		"step_type", string(job.Type),
	)

	err := w.validate.Struct(job)
	if err != nil {
		// A malformed job can never become valid; failing it without retry
		// keeps the queue moving.
		logger.ErrorContext(ctx, "Rejecting malformed job", "error", err)

		return w.publishFailed(ctx, job, "invalid job: "+err.Error())
	}

	logger.InfoContext(ctx, "Processing job queued event")

	outcome, err := w.runner.Run(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to run job", "error", err)

		return err
	}

	switch outcome.Status {
	case models.JobCompleted:
		completed := events.JobCompleted{
			BaseEvent:     events.NewBaseEvent(events.JobCompletedEvent),
			JobID:         job.ID,
			TransactionID: job.TransactionID,
			WorkflowID:    job.WorkflowID,
			StepID:        job.Step.ID,
		}
		completed.WorkerID = w.id

		return w.eventBus.Publish(ctx, job.TransactionID, completed)
	case models.JobFailed:
		return w.publishFailed(ctx, job, outcome.Error)
	case models.JobDelayed:
		delayed := events.JobDelayed{
			BaseEvent: events.NewBaseEvent(events.JobDelayedEvent),
			JobID:     job.ID,
			WindowID:  outcome.WindowID,
			ResumeAt:  outcome.ResumeAt,
		}
		delayed.WorkerID = w.id

		return w.eventBus.Publish(ctx, job.TransactionID, delayed)
	default:
		// Canceled and merged jobs are terminal and need no follow-up.
		return nil
	}
}

func (w *WorkerManager) handleDigestWindowDue(ctx context.Context, event any) error {
	dueEvent, ok := event.(*events.DigestWindowDue)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DigestWindowDue")

		return nil
	}

	logger := w.logger.With("window_id", dueEvent.WindowID)
	logger.InfoContext(ctx, "Processing digest window due event")

	result, flushed, err := w.runner.FlushWindow(ctx, dueEvent.WindowID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to flush digest window", "error", err)

		return err
	}

	if !flushed {
		// Another worker won the close; exactly-once flush holds.
		logger.InfoContext(ctx, "Digest window already flushed")

		return nil
	}

	anchor := result.AnchorJob

	flushedEvent := events.DigestWindowFlushed{
		BaseEvent:   events.NewBaseEvent(events.DigestWindowFlushedEvent),
		WindowID:    dueEvent.WindowID,
		AnchorJobID: anchor.ID,
		TotalCount:  len(result.Events),
	}
	flushedEvent.WorkerID = w.id

	err = w.eventBus.Publish(ctx, anchor.TransactionID, flushedEvent)
	if err != nil {
		return err
	}

	completed := events.JobCompleted{
		BaseEvent:     events.NewBaseEvent(events.JobCompletedEvent),
		JobID:         anchor.ID,
		TransactionID: anchor.TransactionID,
		WorkflowID:    anchor.WorkflowID,
		StepID:        anchor.Step.ID,
		DigestEvents:  result.Events,
	}
	completed.WorkerID = w.id

	return w.eventBus.Publish(ctx, anchor.TransactionID, completed)
}

func (w *WorkerManager) publishFailed(ctx context.Context, job *models.Job, errorText string) error {
	failed := events.JobFailed{
		BaseEvent:     events.NewBaseEvent(events.JobFailedEvent),
		JobID:         job.ID,
		TransactionID: job.TransactionID,
		WorkflowID:    job.WorkflowID,
		StepID:        job.Step.ID,
		Error:         errorText,
	}
	failed.WorkerID = w.id

	return w.eventBus.Publish(ctx, job.TransactionID, failed)
}
