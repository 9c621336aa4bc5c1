package conditions

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence/memory"
	"github.com/courierhq/courier/pkg/variables"
)

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	webhook := NewWebhookClient(logger)
	webhook.backoff = time.Millisecond

	return NewEvaluator(webhook, nil, nil, logger)
}

func testContext() *variables.Context {
	return &variables.Context{
		Subscriber: &models.Subscriber{
			SubscriberID:  "subscriber-1",
			EnvironmentID: "env-1",
			Email:         "pat@example.com",
			Data:          map[string]any{"plan": "pro"},
		},
		Payload: map[string]any{
			"severity": "critical",
			"count":    float64(7),
			"nested":   map[string]any{"region": "eu-west-1"},
		},
	}
}

func condition(source models.FilterSource, field string, operator models.ConditionOperator, value string) models.FilterNode {
	return models.FilterNode{Condition: &models.FilterCondition{
		Source:   source,
		Field:    field,
		Operator: operator,
		Value:    value,
	}}
}

func TestEvaluate_EmptyTreePasses(t *testing.T) {
	evaluator := testEvaluator(t)

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, nil, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluate_PayloadConditions(t *testing.T) {
	evaluator := testEvaluator(t)

	tests := []struct {
		name   string
		node   models.FilterNode
		passed bool
	}{
		{"equal match", condition(models.SourcePayload, "severity", models.OperatorEqual, "critical"), true},
		{"equal mismatch", condition(models.SourcePayload, "severity", models.OperatorEqual, "low"), false},
		{"not equal", condition(models.SourcePayload, "severity", models.OperatorNotEqual, "low"), true},
		{"larger", condition(models.SourcePayload, "count", models.OperatorLarger, "5"), true},
		{"smaller mismatch", condition(models.SourcePayload, "count", models.OperatorSmaller, "5"), false},
		{"larger equal boundary", condition(models.SourcePayload, "count", models.OperatorLargerEqual, "7"), true},
		{"nested path", condition(models.SourcePayload, "nested.region", models.OperatorEqual, "eu-west-1"), true},
		{"is defined", condition(models.SourcePayload, "severity", models.OperatorIsDefined, ""), true},
		{"is defined absent", condition(models.SourcePayload, "missing", models.OperatorIsDefined, ""), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			groups := []*models.FilterGroup{{Operator: models.LogicalAnd, Children: []models.FilterNode{tc.node}}}

			result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

			require.NoError(t, err)
			assert.Equal(t, tc.passed, result.Passed)
		})
	}
}

func TestEvaluate_SubscriberSource(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			condition(models.SourceSubscriber, "data.plan", models.OperatorEqual, "pro"),
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluate_OrShortCircuits(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalOr,
		Children: []models.FilterNode{
			condition(models.SourcePayload, "severity", models.OperatorEqual, "critical"),
			// Would be a rule error, but OR short-circuits before reaching it.
			{Condition: &models.FilterCondition{Source: models.SourcePayload, Field: "x", Operator: "BOGUS"}},
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluate_NegatedGroup(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		IsNegated: true,
		Operator:  models.LogicalAnd,
		Children: []models.FilterNode{
			condition(models.SourcePayload, "severity", models.OperatorEqual, "low"),
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluate_NestedGroups(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			condition(models.SourcePayload, "severity", models.OperatorEqual, "critical"),
			{Group: &models.FilterGroup{
				Operator: models.LogicalOr,
				Children: []models.FilterNode{
					condition(models.SourcePayload, "count", models.OperatorSmaller, "1"),
					condition(models.SourcePayload, "nested.region", models.OperatorEqual, "eu-west-1"),
				},
			}},
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Len(t, result.Conditions, 3)
}

func TestEvaluate_PlaceholderValue(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			condition(models.SourcePayload, "severity", models.OperatorEqual, "{{.payload.severity}}"),
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluate_UnknownOperatorIsRuleError(t *testing.T) {
	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			{Condition: &models.FilterCondition{Source: models.SourcePayload, Field: "severity", Operator: "REGEX"}},
		},
	}}

	_, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	var ruleErr *RuleEvaluationError

	require.ErrorAs(t, err, &ruleErr)
}

func TestEvaluate_WebhookRetryThenPass(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write([]byte(`{"approved": true}`))
	}))
	defer server.Close()

	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			{Condition: &models.FilterCondition{
				Source:     models.SourceWebhook,
				WebhookURL: server.URL,
				Field:      "approved",
				Operator:   models.OperatorEqual,
				Value:      "true",
			}},
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvaluate_WebhookFailsClosedAfterAllAttempts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	evaluator := testEvaluator(t)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			{Condition: &models.FilterCondition{
				Source:     models.SourceWebhook,
				WebhookURL: server.URL,
				Field:      "approved",
				Operator:   models.OperatorEqual,
				Value:      "true",
			}},
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{}, groups, testContext())

	// Fails closed: the condition is unmet, the job itself is unaffected.
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, int32(3), calls.Load(), "original attempt plus two retries")
}

func TestEvaluate_WebhookFailureCannotSatisfyNegatedOperators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	evaluator := testEvaluator(t)

	// Operators that a nil response value would vacuously satisfy. An
	// unreachable endpoint must never turn them into a match.
	operators := []models.ConditionOperator{models.OperatorNotEqual, models.OperatorNotIn}

	for _, operator := range operators {
		t.Run(string(operator), func(t *testing.T) {
			groups := []*models.FilterGroup{{
				Operator: models.LogicalAnd,
				Children: []models.FilterNode{
					{Condition: &models.FilterCondition{
						Source:     models.SourceWebhook,
						WebhookURL: server.URL,
						Field:      "approved",
						Operator:   operator,
						Value:      "true",
					}},
				},
			}}

			result, err := evaluator.Evaluate(context.Background(), &models.Job{ID: "job-1"}, groups, testContext())

			require.NoError(t, err)
			assert.False(t, result.Passed)
			require.Len(t, result.Conditions, 1)
			assert.False(t, result.Conditions[0].Passed)
			assert.NotEmpty(t, result.Conditions[0].Error)
		})
	}
}

func TestEvaluate_WebhookFailureIsAudited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store := memory.NewPersistence()
	audit := execution.NewWriter(store.ExecutionDetails(), logger)
	webhook := NewWebhookClient(logger)
	webhook.backoff = time.Millisecond
	evaluator := NewEvaluator(webhook, nil, audit, logger)

	groups := []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{
			{Condition: &models.FilterCondition{
				Source:     models.SourceWebhook,
				WebhookURL: server.URL,
				Field:      "approved",
				Operator:   models.OperatorEqual,
				Value:      "true",
			}},
		},
	}}

	result, err := evaluator.Evaluate(context.Background(), &models.Job{ID: "job-1"}, groups, testContext())

	require.NoError(t, err)
	assert.False(t, result.Passed)

	details, err := store.ExecutionDetails().ByJob(context.Background(), "job-1")
	require.NoError(t, err)

	var retries, failedClosed int

	for _, detail := range details {
		switch detail.Detail {
		case execution.DetailWebhookFilterRetry:
			retries++
		case execution.DetailWebhookFilterFailedClosed:
			failedClosed++
		}
	}

	assert.Equal(t, 2, retries)
	assert.Equal(t, 1, failedClosed)
}

func TestEvaluateSkip(t *testing.T) {
	evaluator := testEvaluator(t)

	skip, err := evaluator.EvaluateSkip(context.Background(), "", testContext())
	require.NoError(t, err)
	assert.False(t, skip)

	skip, err = evaluator.EvaluateSkip(context.Background(), "true", testContext())
	require.NoError(t, err)
	assert.True(t, skip)

	skip, err = evaluator.EvaluateSkip(context.Background(),
		`{{eq .payload.severity "critical"}}`, testContext())
	require.NoError(t, err)
	assert.True(t, skip)
}

func TestEvaluateSkip_MalformedIsRuleError(t *testing.T) {
	evaluator := testEvaluator(t)

	_, err := evaluator.EvaluateSkip(context.Background(), "{{.payload.severity", testContext())

	var ruleErr *RuleEvaluationError

	require.ErrorAs(t, err, &ruleErr)
}
