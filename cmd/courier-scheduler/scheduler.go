package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courierhq/courier/pkg/digest"
	"github.com/courierhq/courier/pkg/eventbus"
	"github.com/courierhq/courier/pkg/events"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// Scheduler scans the digest due-set and fans expired windows out to the
// workers. It also resumes jobs parked by delay steps.
type Scheduler struct {
	id          string
	logger      *slog.Logger
	eventBus    eventbus.EventBus
	digestStore digest.Store
	persistence persistence.Persistence
	interval    time.Duration
}

func NewScheduler(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	digestStore digest.Store,
	interval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		id:          id,
		logger:      logger.With("module", "courier-scheduler", "scheduler_id", id),
		eventBus:    eventBus,
		digestStore: digestStore,
		persistence: store,
		interval:    interval,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting scheduler", "poll_interval", s.interval.String())

	err := s.eventBus.Handle(events.JobDelayedEvent, s.handleJobDelayed)
	if err != nil {
		return err
	}

	err = s.eventBus.Subscribe(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.pollDueWindows(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	s.logger.InfoContext(ctx, "Shutting down scheduler...")

	return nil
}

func (s *Scheduler) pollDueWindows(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDueWindows(ctx, now.UTC())
		}
	}
}

// dispatchDueWindows may publish the same window on consecutive ticks if the
// workers lag behind; the flush is exactly-once so duplicates are harmless.
func (s *Scheduler) dispatchDueWindows(ctx context.Context, now time.Time) {
	windowIDs, err := s.digestStore.Due(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to scan due digest windows", "error", err)

		return
	}

	for _, windowID := range windowIDs {
		dueEvent := events.DigestWindowDue{
			BaseEvent: events.NewBaseEvent(events.DigestWindowDueEvent),
			WindowID:  windowID,
		}
		dueEvent.WorkerID = s.id

		err := s.eventBus.Publish(ctx, windowID, dueEvent)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish digest window due event",
				"error", err, "window_id", windowID)

			continue
		}

		s.logger.InfoContext(ctx, "Dispatched due digest window", "window_id", windowID)
	}
}

// handleJobDelayed arms a timer for plain delay steps. Digest anchors carry a
// window id and are resumed through the due-set instead.
func (s *Scheduler) handleJobDelayed(ctx context.Context, event any) error {
	delayedEvent, ok := event.(*events.JobDelayed)
	if !ok {
		s.logger.ErrorContext(ctx, "Invalid event type for JobDelayed")

		return nil
	}

	if delayedEvent.WindowID != "" {
		return nil
	}

	wait := time.Until(delayedEvent.ResumeAt)
	if wait < 0 {
		wait = 0
	}

	s.logger.InfoContext(ctx, "Scheduling delayed job resume",
		"job_id", delayedEvent.JobID, "resume_at", delayedEvent.ResumeAt)

	time.AfterFunc(wait, func() {
		s.resumeDelayedJob(ctx, delayedEvent.JobID)
	})

	return nil
}

func (s *Scheduler) resumeDelayedJob(ctx context.Context, jobID string) {
	job, err := s.persistence.Jobs().ByID(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load delayed job", "error", err, "job_id", jobID)

		return
	}

	if job.Status != models.JobDelayed {
		return
	}

	err = s.persistence.Jobs().UpdateStatus(ctx, jobID, models.JobCompleted, "")
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to complete delayed job", "error", err, "job_id", jobID)

		return
	}

	completed := events.JobCompleted{
		BaseEvent:     events.NewBaseEvent(events.JobCompletedEvent),
		JobID:         job.ID,
		TransactionID: job.TransactionID,
		WorkflowID:    job.WorkflowID,
		StepID:        job.Step.ID,
	}
	completed.WorkerID = s.id

	err = s.eventBus.Publish(ctx, job.TransactionID, completed)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish job completed event", "error", err, "job_id", jobID)
	}
}
