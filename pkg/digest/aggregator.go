package digest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/variables"
)

// sharedFilterHash is the hash dimension value used when filter trees are
// excluded from the window key.
const sharedFilterHash = "any"

// Outcome classifies what Admit did with one event.
type Outcome string

const (
	// OutcomeOpened means a new window was created and this job anchors it.
	OutcomeOpened Outcome = "opened"
	// OutcomeMerged means the event joined an already open window and the
	// job terminates as merged.
	OutcomeMerged Outcome = "merged"
	// OutcomeFiltered means the digest step's own filters rejected the
	// event; it is not buffered anywhere.
	OutcomeFiltered Outcome = "filtered"
	// OutcomeImmediate means a backoff digest saw no recent activity and the
	// event proceeds without digesting.
	OutcomeImmediate Outcome = "immediate"
)

// Admission is the result of admitting one event.
type Admission struct {
	Outcome  Outcome
	WindowID string
	ClosesAt time.Time
	// Position is the event count in the window after this admission.
	Position int
}

// Aggregator admits trigger events into digest windows.
type Aggregator struct {
	store     Store
	evaluator *conditions.Evaluator
	audit     *execution.Writer
	logger    *slog.Logger

	// SharedKeyAcrossFilters collapses the filter-tree dimension of the
	// window key, letting steps with different filters share a window.
	SharedKeyAcrossFilters bool
}

func NewAggregator(store Store, evaluator *conditions.Evaluator, audit *execution.Writer, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:     store,
		evaluator: evaluator,
		audit:     audit,
		logger:    logger.With("module", "digest_aggregator"),
	}
}

// Admit routes one digest-step job into its window. The step's own filters
// gate admission: an event they reject is dropped with an audit entry and
// never buffered. Admission is keyed so that only events of the same
// workflow, subscriber, digest-key value and filter tree share a window.
func (a *Aggregator) Admit(ctx context.Context, job *models.Job, vars *variables.Context) (*Admission, error) {
	meta := job.Step.Metadata
	if meta == nil {
		return nil, fmt.Errorf("digest step %s has no metadata", job.Step.ID)
	}

	filtered, err := a.evaluator.Evaluate(ctx, job, job.Step.Filters, vars)
	if err != nil {
		return nil, err
	}

	if !filtered.Passed {
		a.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailDigestFilteredEvent,
			Status: models.DetailStatusSuccess,
			Raw:    filtered,
		})

		return &Admission{Outcome: OutcomeFiltered}, nil
	}

	now := time.Now().UTC()

	keyValue := a.digestKeyValue(meta, job.Payload)
	windowID := a.windowID(job, keyValue)
	event := eventFor(job, now)

	if meta.Type == models.DigestBackoff {
		immediate, err := a.backoffImmediate(ctx, job, meta, windowID, now)
		if err != nil {
			return nil, err
		}

		if immediate {
			return &Admission{Outcome: OutcomeImmediate}, nil
		}
	}

	closesAt, err := WindowEnd(now, meta)
	if err != nil {
		return nil, err
	}

	window := &Window{
		ID:             windowID,
		EnvironmentID:  job.EnvironmentID,
		OrganizationID: job.OrganizationID,
		WorkflowID:     job.WorkflowID,
		SubscriberID:   job.SubscriberID,
		DigestKeyValue: keyValue,
		FilterHash:     a.filterHash(job.Step.Filters),
		AnchorJobID:    job.ID,
		TransactionID:  job.TransactionID,
		OpensAt:        now,
		ClosesAt:       closesAt,
	}

	created, err := a.store.Open(ctx, window, event)
	if err != nil {
		return nil, fmt.Errorf("failed to open digest window %s: %w", windowID, err)
	}

	if created {
		a.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailDigestWindowOpened,
			Status: models.DetailStatusPending,
			Raw:    window,
		})

		return &Admission{Outcome: OutcomeOpened, WindowID: windowID, ClosesAt: closesAt, Position: 1}, nil
	}

	position, err := a.store.Append(ctx, windowID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to append to digest window %s: %w", windowID, err)
	}

	a.audit.Append(ctx, job, execution.Entry{
		Detail: execution.DetailDigestMerged,
		Status: models.DetailStatusSuccess,
		Raw:    map[string]any{"window_id": windowID, "position": position},
	})

	return &Admission{Outcome: OutcomeMerged, WindowID: windowID, Position: position}, nil
}

// Flush closes the window and returns its events. Exactly one concurrent or
// repeated Flush for a window id receives the events; every other call gets
// ok=false and must not produce a post-digest job.
func (a *Aggregator) Flush(ctx context.Context, windowID string) (*ClosedWindow, bool, error) {
	closed, ok, err := a.store.Close(ctx, windowID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to close digest window %s: %w", windowID, err)
	}

	if !ok {
		a.logger.InfoContext(ctx, "Digest window already flushed", "window_id", windowID)

		return nil, false, nil
	}

	return closed, true, nil
}

// Due lists windows whose boundary has passed.
func (a *Aggregator) Due(ctx context.Context, now time.Time) ([]string, error) {
	return a.store.Due(ctx, now)
}

// backoffImmediate decides whether a backoff digest should deliver this event
// right away. The first event after a quiet period goes out immediately;
// later ones buffer. Activity is recorded before deciding so two near
// simultaneous events race on the window, not on the activity marker.
func (a *Aggregator) backoffImmediate(ctx context.Context, job *models.Job, meta *models.DigestMetadata, windowID string, now time.Time) (bool, error) {
	lookback, err := Duration(meta.BackoffAmount, meta.BackoffUnit)
	if err != nil {
		return false, fmt.Errorf("invalid backoff config for step %s: %w", job.Step.ID, err)
	}

	lastAt, seen, err := a.store.LastEventAt(ctx, windowID)
	if err != nil {
		return false, fmt.Errorf("failed to read digest activity for %s: %w", windowID, err)
	}

	if touchErr := a.store.Touch(ctx, windowID, now, lookback); touchErr != nil {
		a.logger.WarnContext(ctx, "Failed to record digest activity", "window_id", windowID, "error", touchErr)
	}

	return !seen || now.Sub(lastAt) > lookback, nil
}

func (a *Aggregator) digestKeyValue(meta *models.DigestMetadata, payload map[string]any) string {
	if meta.DigestKey == "" {
		return ""
	}

	value, ok := conditions.Dig(payload, meta.DigestKey)
	if !ok || value == nil {
		return ""
	}

	return fmt.Sprintf("%v", value)
}

func (a *Aggregator) windowID(job *models.Job, keyValue string) string {
	parts := []string{
		job.EnvironmentID,
		job.WorkflowID,
		job.SubscriberID,
		keyValue,
		a.filterHash(job.Step.Filters),
	}

	return strings.Join(parts, ":")
}

// filterHash fingerprints the step's filter tree so differently filtered
// digest steps never share a window.
func (a *Aggregator) filterHash(filters []*models.FilterGroup) string {
	if a.SharedKeyAcrossFilters || len(filters) == 0 {
		return sharedFilterHash
	}

	encoded, err := json.Marshal(filters)
	if err != nil {
		return sharedFilterHash
	}

	sum := sha256.Sum256(encoded)

	return hex.EncodeToString(sum[:8])
}

func eventFor(job *models.Job, at time.Time) map[string]any {
	return map[string]any{
		"job_id":         job.ID,
		"transaction_id": job.TransactionID,
		"subscriber_id":  job.SubscriberID,
		"payload":        job.Payload,
		"occurred_at":    at.Format(time.RFC3339Nano),
	}
}

// ErrWindowNotFound is returned by store implementations when an append
// targets a window that is not open.
var ErrWindowNotFound = errors.New("digest window not found")
