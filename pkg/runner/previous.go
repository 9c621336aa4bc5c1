package runner

import (
	"context"
	"fmt"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// PreviousStepSource resolves previous-step filter lookups from durable
// state. Steps of one transaction run on different workers, so the prior
// outcome is always read back from storage.
type PreviousStepSource struct {
	jobs     persistence.JobRepository
	messages persistence.MessageRepository
}

func NewPreviousStepSource(jobs persistence.JobRepository, messages persistence.MessageRepository) *PreviousStepSource {
	return &PreviousStepSource{jobs: jobs, messages: messages}
}

func (s *PreviousStepSource) PreviousStepResult(ctx context.Context, job *models.Job, stepID string) (map[string]any, error) {
	previous, err := s.jobs.ByTransactionAndStep(ctx, job.TransactionID, stepID)
	if err != nil {
		return nil, fmt.Errorf("previous step %s not found for transaction %s: %w", stepID, job.TransactionID, err)
	}

	result := map[string]any{
		"status": string(previous.Status),
	}

	if previous.Error != "" {
		result["error"] = previous.Error
	}

	messages, err := s.messages.ByJob(ctx, previous.ID)
	if err == nil && len(messages) > 0 {
		latest := messages[len(messages)-1]
		result["message_status"] = string(latest.Status)
		result["provider_id"] = latest.ProviderID
	}

	return result, nil
}
