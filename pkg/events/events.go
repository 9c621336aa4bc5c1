// Package events defines the event types that move step jobs through the
// delivery pipeline.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/pkg/models"
)

type EventType string

// Kafka topics.
const (
	JobsTopic   = "courier.jobs"   // step job queueing and lifecycle
	DigestTopic = "courier.digest" // digest window boundary traffic
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Step job lifecycle events.
	JobQueuedEvent    EventType = "job.queued"
	JobCompletedEvent EventType = "job.completed"
	JobFailedEvent    EventType = "job.failed"
	JobDelayedEvent   EventType = "job.delayed"

	// Digest window events.
	DigestWindowDueEvent     EventType = "digest.window.due"
	DigestWindowFlushedEvent EventType = "digest.window.flushed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]any),
	}
}

// JobQueued asks a worker to run one step job.
type JobQueued struct {
	BaseEvent

	Job *models.Job `json:"job"`
}

func (e JobQueued) GetType() EventType {
	return JobQueuedEvent
}

// JobCompleted reports a job that reached the completed status. Digest
// events are attached when the job resumed from a flushed window so the next
// step can be fanned out with the aggregate context.
type JobCompleted struct {
	BaseEvent

	JobID         string           `json:"job_id"`
	TransactionID string           `json:"transaction_id"`
	WorkflowID    string           `json:"workflow_id"`
	StepID        string           `json:"step_id"`
	DigestEvents  []map[string]any `json:"digest_events,omitempty"`
}

func (e JobCompleted) GetType() EventType {
	return JobCompletedEvent
}

// JobFailed reports a job that reached a terminal failure.
type JobFailed struct {
	BaseEvent

	JobID         string `json:"job_id"`
	TransactionID string `json:"transaction_id"`
	WorkflowID    string `json:"workflow_id"`
	StepID        string `json:"step_id"`
	Error         string `json:"error"`
}

func (e JobFailed) GetType() EventType {
	return JobFailedEvent
}

// JobDelayed reports a job parked until ResumeAt: a delay step or the anchor
// of a digest window.
type JobDelayed struct {
	BaseEvent

	JobID    string    `json:"job_id"`
	WindowID string    `json:"window_id,omitempty"`
	ResumeAt time.Time `json:"resume_at"`
}

func (e JobDelayed) GetType() EventType {
	return JobDelayedEvent
}

// DigestWindowDue asks a worker to flush a window whose boundary passed.
type DigestWindowDue struct {
	BaseEvent

	WindowID string `json:"window_id"`
}

func (e DigestWindowDue) GetType() EventType {
	return DigestWindowDueEvent
}

// DigestWindowFlushed reports a completed flush.
type DigestWindowFlushed struct {
	BaseEvent

	WindowID    string `json:"window_id"`
	AnchorJobID string `json:"anchor_job_id"`
	TotalCount  int    `json:"total_count"`
}

func (e DigestWindowFlushed) GetType() EventType {
	return DigestWindowFlushedEvent
}
