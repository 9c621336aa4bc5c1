// Package senders executes deliverable steps: each sender owns one channel's
// dispatch pipeline from integration selection through provider handoff and
// message bookkeeping.
package senders

import (
	"context"
	"fmt"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/variables"
)

// Dispatch is the resolved execution state a sender works from. The runner
// builds it once per job after filters and preferences have passed.
type Dispatch struct {
	Job         *models.Job
	Environment *models.Environment
	Vars        *variables.Context
}

// SendError is a delivery failure whose audit entry has already been written.
// Detail names the entry so the runner can fail the job without re-auditing.
type SendError struct {
	Detail string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}

	return e.Detail
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Sender delivers one step type.
type Sender interface {
	Send(ctx context.Context, dispatch *Dispatch) error
}

// Registry maps step types to their senders.
type Registry struct {
	senders map[models.StepType]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.StepType]Sender)}
}

func (r *Registry) Register(stepType models.StepType, sender Sender) {
	r.senders[stepType] = sender
}

func (r *Registry) For(stepType models.StepType) (Sender, error) {
	sender, ok := r.senders[stepType]
	if !ok {
		return nil, fmt.Errorf("step type '%s' has no registered sender", stepType)
	}

	return sender, nil
}
