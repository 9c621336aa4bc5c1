package execution

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence"
)

// Entry is one audit fact to append for a job. Job-identifying fields are
// filled in from the job by the writer.
type Entry struct {
	Detail     string
	Status     models.ExecutionDetailStatus
	Source     models.ExecutionDetailSource
	MessageID  string
	ProviderID string
	Raw        any // marshaled to JSON when non-nil
}

// Writer appends execution details. Append failures are logged, never
// returned: losing one audit entry must not fail the job itself.
type Writer struct {
	details persistence.ExecutionDetailRepository
	logger  *slog.Logger
}

func NewWriter(details persistence.ExecutionDetailRepository, logger *slog.Logger) *Writer {
	return &Writer{
		details: details,
		logger:  logger.With("module", "execution_log"),
	}
}

// Append records one entry for the job.
func (w *Writer) Append(ctx context.Context, job *models.Job, entry Entry) {
	detail := &models.ExecutionDetail{
		JobID:          job.ID,
		MessageID:      entry.MessageID,
		TransactionID:  job.TransactionID,
		EnvironmentID:  job.EnvironmentID,
		OrganizationID: job.OrganizationID,
		WorkflowID:     job.WorkflowID,
		SubscriberID:   job.SubscriberID,
		ProviderID:     entry.ProviderID,
		Channel:        channelOf(job),
		Detail:         entry.Detail,
		Source:         entry.Source,
		Status:         entry.Status,
		Raw:            marshalRaw(entry.Raw),
	}

	if detail.Source == "" {
		detail.Source = models.DetailSourceInternal
	}

	err := w.details.Append(ctx, detail)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to append execution detail",
			"job_id", job.ID, "detail", entry.Detail, "error", err)
	}
}

func channelOf(job *models.Job) models.ChannelType {
	channel, _ := job.Type.Channel()

	return channel
}

func marshalRaw(raw any) string {
	if raw == nil {
		return ""
	}

	if s, ok := raw.(string); ok {
		return s
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return ""
	}

	return string(encoded)
}
