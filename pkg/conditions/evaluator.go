// Package conditions evaluates step filter trees and skip expressions
// against the variable context. Evaluation is pure given the context; only
// webhook-backed predicates reach the network.
package conditions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/template"
	"github.com/courierhq/courier/pkg/variables"
)

// PreviousStepLookup reads a prior step's outcome from durable state. Steps
// of one transaction complete on different workers, so the result can never
// be handed over in memory.
type PreviousStepLookup interface {
	PreviousStepResult(ctx context.Context, job *models.Job, stepID string) (map[string]any, error)
}

// ConditionResult explains one evaluated leaf predicate for the audit trail.
type ConditionResult struct {
	Source   models.FilterSource      `json:"source"`
	Field    string                   `json:"field,omitempty"`
	Operator models.ConditionOperator `json:"operator"`
	Expected any                      `json:"expected,omitempty"`
	Actual   any                      `json:"actual,omitempty"`
	Passed   bool                     `json:"passed"`
	Error    string                   `json:"error,omitempty"`
}

// Result is the outcome of evaluating a filter tree.
type Result struct {
	Passed     bool              `json:"passed"`
	Conditions []ConditionResult `json:"conditions,omitempty"`
}

// Evaluator walks filter trees. AND groups short-circuit on the first false
// child, OR groups on the first true one; a negated group inverts its result
// after evaluation.
type Evaluator struct {
	webhook  *WebhookClient
	previous PreviousStepLookup
	audit    *execution.Writer
	logger   *slog.Logger
}

func NewEvaluator(webhook *WebhookClient, previous PreviousStepLookup, audit *execution.Writer, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		webhook:  webhook,
		previous: previous,
		audit:    audit,
		logger:   logger.With("module", "condition_evaluator"),
	}
}

// Evaluate runs the job's filter groups against the variable context. An
// empty or absent tree always passes. Multiple top-level groups must all
// pass.
func (e *Evaluator) Evaluate(ctx context.Context, job *models.Job, groups []*models.FilterGroup, vars *variables.Context) (*Result, error) {
	result := &Result{Passed: true}

	if len(groups) == 0 {
		return result, nil
	}

	for _, group := range groups {
		passed, err := e.evaluateGroup(ctx, job, group, vars, result)
		if err != nil {
			return nil, err
		}

		if !passed {
			result.Passed = false

			return result, nil
		}
	}

	return result, nil
}

// EvaluateSkip evaluates the step's skip expression, independent of the
// filter tree. A malformed expression is a RuleEvaluationError, which the
// runner treats as a terminal failure.
func (e *Evaluator) EvaluateSkip(_ context.Context, expression string, vars *variables.Context) (bool, error) {
	if expression == "" {
		return false, nil
	}

	rendered, err := template.Render(expression, vars.TemplateData())
	if err != nil {
		return false, &RuleEvaluationError{Reason: "malformed skip expression", Err: err}
	}

	skip, err := strconv.ParseBool(strings.TrimSpace(rendered))
	if err != nil {
		return false, &RuleEvaluationError{Reason: "skip expression is not boolean", Err: err}
	}

	return skip, nil
}

func (e *Evaluator) evaluateGroup(ctx context.Context, job *models.Job, group *models.FilterGroup, vars *variables.Context, result *Result) (bool, error) {
	if group == nil || len(group.Children) == 0 {
		return !groupNegated(group), nil
	}

	passed := group.Operator == models.LogicalAnd

	for _, child := range group.Children {
		childPassed, err := e.evaluateNode(ctx, job, child, vars, result)
		if err != nil {
			return false, err
		}

		if group.Operator == models.LogicalOr {
			if childPassed {
				passed = true

				break
			}

			passed = false
		} else if !childPassed {
			passed = false

			break
		}
	}

	if group.IsNegated {
		passed = !passed
	}

	return passed, nil
}

func groupNegated(group *models.FilterGroup) bool {
	return group != nil && group.IsNegated
}

func (e *Evaluator) evaluateNode(ctx context.Context, job *models.Job, node models.FilterNode, vars *variables.Context, result *Result) (bool, error) {
	if node.Group != nil {
		return e.evaluateGroup(ctx, job, node.Group, vars, result)
	}

	if node.Condition != nil {
		return e.evaluateCondition(ctx, job, node.Condition, vars, result)
	}

	return false, &RuleEvaluationError{Reason: "filter node has neither group nor condition"}
}

func (e *Evaluator) evaluateCondition(ctx context.Context, job *models.Job, condition *models.FilterCondition, vars *variables.Context, result *Result) (bool, error) {
	if condition.Source == models.SourceWebhook {
		return e.evaluateWebhookCondition(ctx, job, condition, vars, result)
	}

	actual, err := e.resolveActual(ctx, job, condition, vars)
	if err != nil {
		return false, err
	}

	return e.finishCondition(condition, vars, actual, result)
}

// evaluateWebhookCondition resolves the predicate against the operator's
// endpoint. Transport failure after all retries fails the predicate closed:
// the condition is unmet regardless of the operator's shape, so negated
// operators cannot turn an unreachable endpoint into a match. Each retry and
// the final failure are audited; the error itself is never surfaced.
func (e *Evaluator) evaluateWebhookCondition(ctx context.Context, job *models.Job, condition *models.FilterCondition, vars *variables.Context, result *Result) (bool, error) {
	onRetry := func(attempt int, attemptErr error) {
		e.appendAudit(ctx, job, execution.Entry{
			Detail: execution.DetailWebhookFilterRetry,
			Status: models.DetailStatusWarning,
			Raw:    map[string]any{"url": condition.WebhookURL, "attempt": attempt, "error": attemptErr.Error()},
		})
	}

	response, err := e.webhook.Fetch(ctx, condition.WebhookURL, vars.TemplateData(), onRetry)
	if err != nil {
		e.logger.ErrorContext(ctx, "Webhook filter failed on all attempts, condition treated as unmet",
			"url", condition.WebhookURL, "job_id", job.ID, "error", err)

		e.appendAudit(ctx, job, execution.Entry{
			Detail: execution.DetailWebhookFilterFailedClosed,
			Status: models.DetailStatusFailed,
			Raw:    map[string]any{"url": condition.WebhookURL, "error": err.Error()},
		})

		result.Conditions = append(result.Conditions, ConditionResult{
			Source:   condition.Source,
			Field:    condition.Field,
			Operator: condition.Operator,
			Passed:   false,
			Error:    err.Error(),
		})

		return false, nil
	}

	actual, _ := Dig(response, condition.Field)

	return e.finishCondition(condition, vars, actual, result)
}

// finishCondition applies the operator and records the explained outcome.
func (e *Evaluator) finishCondition(condition *models.FilterCondition, vars *variables.Context, actual any, result *Result) (bool, error) {
	expected, err := e.resolveExpected(condition, vars)
	if err != nil {
		return false, err
	}

	passed, err := compare(condition.Operator, actual, expected)
	if err != nil {
		return false, err
	}

	result.Conditions = append(result.Conditions, ConditionResult{
		Source:   condition.Source,
		Field:    condition.Field,
		Operator: condition.Operator,
		Expected: expected,
		Actual:   actual,
		Passed:   passed,
	})

	return passed, nil
}

func (e *Evaluator) appendAudit(ctx context.Context, job *models.Job, entry execution.Entry) {
	if e.audit == nil {
		return
	}

	e.audit.Append(ctx, job, entry)
}

// resolveActual loads the left-hand side of a non-webhook predicate.
func (e *Evaluator) resolveActual(ctx context.Context, job *models.Job, condition *models.FilterCondition, vars *variables.Context) (any, error) {
	switch condition.Source {
	case models.SourcePreviousStep:
		if e.previous == nil {
			return nil, nil
		}

		outcome, err := e.previous.PreviousStepResult(ctx, job, condition.StepID)
		if err != nil {
			e.logger.WarnContext(ctx, "Previous step outcome unavailable",
				"step_id", condition.StepID, "job_id", job.ID, "error", err)

			return nil, nil
		}

		actual, _ := Dig(outcome, condition.Field)

		return actual, nil
	default:
		data, ok := vars.SourceData(condition.Source)
		if !ok {
			return nil, nil
		}

		actual, _ := Dig(data, condition.Field)

		return actual, nil
	}
}

// resolveExpected substitutes {{ }} placeholders in the authored value from
// the variable context. A placeholder that cannot be resolved is a malformed
// rule, not a missed match.
func (e *Evaluator) resolveExpected(condition *models.FilterCondition, vars *variables.Context) (any, error) {
	if !template.HasPlaceholders(condition.Value) {
		return condition.Value, nil
	}

	expected, err := template.RenderValue(condition.Value, vars.TemplateData())
	if err != nil {
		return nil, &RuleEvaluationError{Reason: "malformed filter value placeholder", Err: err}
	}

	return expected, nil
}
