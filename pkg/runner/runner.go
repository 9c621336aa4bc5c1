// Package runner orchestrates one step job end to end: variable context,
// skip and filter evaluation, preference gating and channel dispatch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/digest"
	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/otelhelper"
	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/preferences"
	"github.com/courierhq/courier/pkg/senders"
	"github.com/courierhq/courier/pkg/variables"
)

// Outcome is the terminal result of running one job.
type Outcome struct {
	Status models.JobStatus
	Error  string

	// ResumeAt is set for delayed jobs: when the digest window closes or
	// the delay elapses.
	ResumeAt time.Time
	// WindowID is set when the job opened a digest window.
	WindowID string
}

// DigestResult is what a window flush produces: the anchor job annotated
// with the buffered events, ready to resume as a post-digest job.
type DigestResult struct {
	AnchorJob *models.Job
	Events    []map[string]any
}

// Runner executes step jobs.
type Runner struct {
	persistence persistence.Persistence
	variables   *variables.Builder
	evaluator   *conditions.Evaluator
	preferences *preferences.Resolver
	aggregator  *digest.Aggregator
	senders     *senders.Registry
	audit       *execution.Writer
	tracer      trace.Tracer
	logger      *slog.Logger
}

func NewRunner(
	store persistence.Persistence,
	builder *variables.Builder,
	evaluator *conditions.Evaluator,
	resolver *preferences.Resolver,
	aggregator *digest.Aggregator,
	registry *senders.Registry,
	audit *execution.Writer,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		persistence: store,
		variables:   builder,
		evaluator:   evaluator,
		preferences: resolver,
		aggregator:  aggregator,
		senders:     registry,
		audit:       audit,
		tracer:      tracer,
		logger:      logger.With("module", "step_runner"),
	}
}

// Run executes one job to a terminal status and persists it. The returned
// outcome tells the caller whether follow-up scheduling is needed.
func (r *Runner) Run(ctx context.Context, job *models.Job) (Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "job.run",
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.TransactionIDKey, job.TransactionID),
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.StepTypeKey, string(job.Type)),
	)
	defer span.End()

	r.updateStatus(ctx, job, models.JobRunning, "")

	outcome, err := r.run(ctx, job)
	if err != nil {
		otelhelper.SetError(span, err)

		outcome = Outcome{Status: models.JobFailed, Error: err.Error()}
	}

	r.updateStatus(ctx, job, outcome.Status, outcome.Error)

	span.SetAttributes(attribute.String(otelhelper.JobStatusKey, string(outcome.Status)))

	return outcome, nil
}

func (r *Runner) run(ctx context.Context, job *models.Job) (Outcome, error) {
	if !job.Step.Active && job.Type != models.StepTrigger {
		return Outcome{Status: models.JobCanceled}, nil
	}

	if job.Step.PayloadSchema != nil {
		err := validatePayloadSchema(job.Payload, job.Step.PayloadSchema)
		if err != nil {
			r.audit.Append(ctx, job, execution.Entry{
				Detail: execution.DetailPayloadSchemaInvalid,
				Status: models.DetailStatusFailed,
				Raw:    map[string]any{"error": err.Error()},
			})

			return Outcome{Status: models.JobFailed, Error: err.Error()}, nil
		}
	}

	workflow, err := r.loadWorkflow(ctx, job)
	if err != nil {
		return Outcome{}, err
	}

	vars, err := r.variables.Build(ctx, job)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build variable context: %w", err)
	}

	if vars.TenantMissing {
		return Outcome{
			Status: models.JobFailed,
			Error:  fmt.Sprintf("tenant %s not found", job.Tenant.Identifier),
		}, nil
	}

	// The skip expression runs before anything else; a malformed expression
	// is terminal, never silently ignored.
	skip, err := r.evaluator.EvaluateSkip(ctx, job.Step.Skip, vars)
	if err != nil {
		var ruleErr *conditions.RuleEvaluationError
		if errors.As(err, &ruleErr) {
			r.audit.Append(ctx, job, execution.Entry{
				Detail: execution.DetailRuleEvaluationFailed,
				Status: models.DetailStatusFailed,
				Raw:    map[string]any{"reason": ruleErr.Reason, "error": ruleErr.Error()},
			})

			return Outcome{Status: models.JobFailed, Error: ruleErr.Error()}, nil
		}

		return Outcome{}, err
	}

	if skip {
		r.audit.Append(ctx, job, execution.Entry{
			Detail: execution.DetailSkipConditions,
			Status: models.DetailStatusSuccess,
		})

		return Outcome{Status: models.JobCanceled}, nil
	}

	passed, outcome, done, err := r.gate(ctx, job, workflow, vars)
	if err != nil {
		return Outcome{}, err
	}

	if done || !passed {
		return outcome, nil
	}

	switch job.Type {
	case models.StepTrigger:
		return Outcome{Status: models.JobCompleted}, nil
	case models.StepDigest:
		return r.runDigest(ctx, job, vars)
	case models.StepDelay:
		return r.runDelay(ctx, job)
	default:
		return r.runSend(ctx, job, vars)
	}
}

// gate evaluates step filters and channel preferences concurrently; both are
// independent reads of the same context and neither may see the other's
// result.
func (r *Runner) gate(ctx context.Context, job *models.Job, workflow *models.Workflow, vars *variables.Context) (bool, Outcome, bool, error) {
	var (
		wg sync.WaitGroup

		filterResult *conditions.Result
		filterErr    error

		resolution preferences.Resolution
		prefErr    error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()

		filterResult, filterErr = r.evaluator.Evaluate(ctx, job, job.Step.Filters, vars)
	}()

	go func() {
		defer wg.Done()

		if workflow == nil && job.Preferences != nil {
			resolution, prefErr = r.preferences.Resolve(ctx, job, nil, job.Preferences)

			return
		}

		if workflow == nil {
			resolution = preferences.Resolution{Enabled: true}

			return
		}

		resolution, prefErr = r.preferences.Resolve(ctx, job, workflow, nil)
	}()

	wg.Wait()

	if filterErr != nil {
		var ruleErr *conditions.RuleEvaluationError
		if errors.As(filterErr, &ruleErr) {
			r.audit.Append(ctx, job, execution.Entry{
				Detail: execution.DetailRuleEvaluationFailed,
				Status: models.DetailStatusFailed,
				Raw:    map[string]any{"reason": ruleErr.Reason, "error": ruleErr.Error()},
			})

			return false, Outcome{Status: models.JobFailed, Error: ruleErr.Error()}, true, nil
		}

		return false, Outcome{}, false, filterErr
	}

	if prefErr != nil {
		return false, Outcome{}, false, prefErr
	}

	if !filterResult.Passed {
		// The workflow's first step ran its filters at trigger time; a
		// second audit entry here would duplicate the trail.
		if workflow == nil || workflow.FirstStepID() != job.Step.ID {
			r.audit.Append(ctx, job, execution.Entry{
				Detail: execution.DetailFilterSteps,
				Status: models.DetailStatusSuccess,
				Raw:    filterResult,
			})
		}

		return false, Outcome{Status: models.JobCanceled}, false, nil
	}

	if !resolution.Enabled {
		return false, Outcome{Status: models.JobCanceled}, false, nil
	}

	return true, Outcome{}, false, nil
}

func (r *Runner) runDigest(ctx context.Context, job *models.Job, vars *variables.Context) (Outcome, error) {
	r.audit.Append(ctx, job, execution.Entry{
		Detail: execution.DetailStartDigesting,
		Status: models.DetailStatusPending,
	})

	admission, err := r.aggregator.Admit(ctx, job, vars)
	if err != nil {
		var ruleErr *conditions.RuleEvaluationError
		if errors.As(err, &ruleErr) {
			r.audit.Append(ctx, job, execution.Entry{
				Detail: execution.DetailRuleEvaluationFailed,
				Status: models.DetailStatusFailed,
				Raw:    map[string]any{"reason": ruleErr.Reason, "error": ruleErr.Error()},
			})

			return Outcome{Status: models.JobFailed, Error: ruleErr.Error()}, nil
		}

		return Outcome{}, err
	}

	switch admission.Outcome {
	case digest.OutcomeFiltered:
		return Outcome{Status: models.JobCanceled}, nil
	case digest.OutcomeOpened:
		return Outcome{
			Status:   models.JobDelayed,
			ResumeAt: admission.ClosesAt,
			WindowID: admission.WindowID,
		}, nil
	case digest.OutcomeMerged:
		return Outcome{Status: models.JobMerged}, nil
	default:
		return Outcome{Status: models.JobCompleted}, nil
	}
}

func (r *Runner) runDelay(ctx context.Context, job *models.Job) (Outcome, error) {
	resumeAt, err := digest.WindowEnd(time.Now().UTC(), job.Step.Metadata)
	if err != nil {
		return Outcome{}, fmt.Errorf("invalid delay configuration: %w", err)
	}

	r.audit.Append(ctx, job, execution.Entry{
		Detail: execution.DetailDelayScheduled,
		Status: models.DetailStatusPending,
		Raw:    map[string]any{"resume_at": resumeAt.Format(time.RFC3339)},
	})

	return Outcome{Status: models.JobDelayed, ResumeAt: resumeAt}, nil
}

func (r *Runner) runSend(ctx context.Context, job *models.Job, vars *variables.Context) (Outcome, error) {
	r.audit.Append(ctx, job, execution.Entry{
		Detail: execution.DetailStartSending,
		Status: models.DetailStatusPending,
	})

	sender, err := r.senders.For(job.Type)
	if err != nil {
		return Outcome{}, err
	}

	environment, err := r.persistence.Environments().ByID(ctx, job.EnvironmentID)
	if err != nil {
		if !persistence.IsNotFound(err) {
			return Outcome{}, fmt.Errorf("failed to load environment %s: %w", job.EnvironmentID, err)
		}

		environment = nil
	}

	dispatch := &senders.Dispatch{
		Job:         job,
		Environment: environment,
		Vars:        vars,
	}

	if err := sender.Send(ctx, dispatch); err != nil {
		var sendErr *senders.SendError
		if errors.As(err, &sendErr) {
			return Outcome{Status: models.JobFailed, Error: sendErr.Error()}, nil
		}

		return Outcome{}, err
	}

	return Outcome{Status: models.JobCompleted}, nil
}

// FlushWindow closes a due digest window and returns the anchor job loaded
// with the buffered events. The second return is false when another worker
// already flushed the window.
func (r *Runner) FlushWindow(ctx context.Context, windowID string) (*DigestResult, bool, error) {
	closed, ok, err := r.aggregator.Flush(ctx, windowID)
	if err != nil {
		return nil, false, err
	}

	if !ok {
		return nil, false, nil
	}

	anchor, err := r.persistence.Jobs().ByID(ctx, closed.AnchorJobID)
	if err != nil {
		return nil, false, fmt.Errorf("anchor job %s of window %s not found: %w", closed.AnchorJobID, windowID, err)
	}

	if anchor.Digest == nil {
		anchor.Digest = &models.DigestMetadata{}
	}

	anchor.Digest.Events = closed.Events

	r.audit.Append(ctx, anchor, execution.Entry{
		Detail: execution.DetailDigestTriggeredEvent,
		Status: models.DetailStatusSuccess,
		Raw:    map[string]any{"window_id": windowID, "total_count": len(closed.Events)},
	})

	r.updateStatus(ctx, anchor, models.JobCompleted, "")

	return &DigestResult{AnchorJob: anchor, Events: closed.Events}, true, nil
}

func (r *Runner) loadWorkflow(ctx context.Context, job *models.Job) (*models.Workflow, error) {
	workflow, err := r.persistence.Workflows().ByID(ctx, job.EnvironmentID, job.WorkflowID)
	if err != nil {
		if persistence.IsNotFound(err) {
			// Stateless execution: the job carries everything it needs.
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load workflow %s: %w", job.WorkflowID, err)
	}

	return workflow, nil
}

func (r *Runner) updateStatus(ctx context.Context, job *models.Job, status models.JobStatus, errorText string) {
	job.Status = status
	job.Error = errorText

	err := r.persistence.Jobs().UpdateStatus(ctx, job.ID, status, errorText)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist job status",
			"job_id", job.ID, "status", status, "error", err)
	}
}
