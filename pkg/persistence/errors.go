package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	ErrJobNotFound         = errors.New("job not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrSubscriberNotFound  = errors.New("subscriber not found")
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrEnvironmentNotFound = errors.New("environment not found")
	ErrPreferenceNotFound  = errors.New("preference not found")
)

// RepositoryError wraps repository failures with operation context.
type RepositoryError struct {
	Op     string // operation being performed, e.g. "ByID", "Append"
	Entity string // entity kind, e.g. "job", "message"
	ID     string // entity id if applicable
	Err    error
}

func (e *RepositoryError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRepositoryError creates a repository error with context.
func NewRepositoryError(op, entity, id string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrSubscriberNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrIntegrationNotFound) ||
		errors.Is(err, ErrEnvironmentNotFound) ||
		errors.Is(err, ErrPreferenceNotFound)
}
