package digest

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierhq/courier/pkg/conditions"
	"github.com/courierhq/courier/pkg/execution"
	"github.com/courierhq/courier/pkg/models"
	"github.com/courierhq/courier/pkg/persistence/memory"
	"github.com/courierhq/courier/pkg/variables"
)

func testAggregator(t *testing.T) (*Aggregator, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	audit := execution.NewWriter(store.ExecutionDetails(), logger)
	evaluator := conditions.NewEvaluator(conditions.NewWebhookClient(logger), nil, audit, logger)

	return NewAggregator(NewMemoryStore(), evaluator, audit, logger), store
}

func digestJob(id, subscriberID string, meta *models.DigestMetadata, payload map[string]any) *models.Job {
	return &models.Job{
		ID:            id,
		TransactionID: "tx-" + id,
		EnvironmentID: "env-1",
		WorkflowID:    "workflow-1",
		SubscriberID:  subscriberID,
		Type:          models.StepDigest,
		Step: models.StepDefinition{
			ID:       "digest-step",
			Type:     models.StepDigest,
			Metadata: meta,
			Active:   true,
		},
		Payload: payload,
	}
}

func regularMeta() *models.DigestMetadata {
	return &models.DigestMetadata{Type: models.DigestRegular, Amount: 5, Unit: models.UnitMinutes}
}

func TestAdmit_FirstEventOpensWindowSecondMerges(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()
	vars := &variables.Context{}

	first, err := aggregator.Admit(ctx, digestJob("job-1", "subscriber-1", regularMeta(), nil), vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, first.Outcome)
	assert.Equal(t, 1, first.Position)

	second, err := aggregator.Admit(ctx, digestJob("job-2", "subscriber-1", regularMeta(), nil), vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, second.Outcome)
	assert.Equal(t, first.WindowID, second.WindowID)
	assert.Equal(t, 2, second.Position)

	closed, ok, err := aggregator.Flush(ctx, first.WindowID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "job-1", closed.AnchorJobID)
	assert.Len(t, closed.Events, 2)
}

func TestFlush_SecondFlushIsNoOp(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()

	admission, err := aggregator.Admit(ctx, digestJob("job-1", "subscriber-1", regularMeta(), nil), &variables.Context{})
	require.NoError(t, err)

	_, ok, err := aggregator.Flush(ctx, admission.WindowID)
	require.NoError(t, err)
	require.True(t, ok)

	closed, ok, err := aggregator.Flush(ctx, admission.WindowID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, closed)
}

func TestAdmit_DifferentSubscribersDoNotShareWindow(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()
	vars := &variables.Context{}

	first, err := aggregator.Admit(ctx, digestJob("job-1", "subscriber-1", regularMeta(), nil), vars)
	require.NoError(t, err)

	second, err := aggregator.Admit(ctx, digestJob("job-2", "subscriber-2", regularMeta(), nil), vars)
	require.NoError(t, err)

	assert.Equal(t, OutcomeOpened, first.Outcome)
	assert.Equal(t, OutcomeOpened, second.Outcome)
	assert.NotEqual(t, first.WindowID, second.WindowID)
}

func TestAdmit_DigestKeyPartitionsWindows(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()
	vars := &variables.Context{}

	meta := regularMeta()
	meta.DigestKey = "order.id"

	first, err := aggregator.Admit(ctx,
		digestJob("job-1", "subscriber-1", meta, map[string]any{"order": map[string]any{"id": "A"}}), vars)
	require.NoError(t, err)

	second, err := aggregator.Admit(ctx,
		digestJob("job-2", "subscriber-1", meta, map[string]any{"order": map[string]any{"id": "B"}}), vars)
	require.NoError(t, err)

	assert.NotEqual(t, first.WindowID, second.WindowID)
	assert.Equal(t, OutcomeOpened, second.Outcome)
}

func TestAdmit_DifferentFiltersDoNotShareWindow(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()

	payload := map[string]any{"severity": "high"}
	vars := &variables.Context{Payload: payload}

	highOnly := digestJob("job-1", "subscriber-1", regularMeta(), payload)
	highOnly.Step.Filters = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{Condition: &models.FilterCondition{
			Source: models.SourcePayload, Field: "severity", Operator: models.OperatorEqual, Value: "high",
		}}},
	}}

	unfiltered := digestJob("job-2", "subscriber-1", regularMeta(), payload)

	first, err := aggregator.Admit(ctx, highOnly, vars)
	require.NoError(t, err)

	second, err := aggregator.Admit(ctx, unfiltered, vars)
	require.NoError(t, err)

	assert.Equal(t, OutcomeOpened, first.Outcome)
	assert.Equal(t, OutcomeOpened, second.Outcome)
	assert.NotEqual(t, first.WindowID, second.WindowID)
}

func TestAdmit_SharedKeyAcrossFiltersCollapsesWindows(t *testing.T) {
	aggregator, _ := testAggregator(t)
	aggregator.SharedKeyAcrossFilters = true

	ctx := context.Background()
	payload := map[string]any{"severity": "high"}
	vars := &variables.Context{Payload: payload}

	highOnly := digestJob("job-1", "subscriber-1", regularMeta(), payload)
	highOnly.Step.Filters = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{Condition: &models.FilterCondition{
			Source: models.SourcePayload, Field: "severity", Operator: models.OperatorEqual, Value: "high",
		}}},
	}}

	first, err := aggregator.Admit(ctx, highOnly, vars)
	require.NoError(t, err)

	second, err := aggregator.Admit(ctx, digestJob("job-2", "subscriber-1", regularMeta(), payload), vars)
	require.NoError(t, err)

	assert.Equal(t, first.WindowID, second.WindowID)
	assert.Equal(t, OutcomeMerged, second.Outcome)
}

func TestAdmit_FilteredEventIsNotBuffered(t *testing.T) {
	aggregator, store := testAggregator(t)
	ctx := context.Background()

	payload := map[string]any{"severity": "low"}
	vars := &variables.Context{Payload: payload}

	job := digestJob("job-1", "subscriber-1", regularMeta(), payload)
	job.Step.Filters = []*models.FilterGroup{{
		Operator: models.LogicalAnd,
		Children: []models.FilterNode{{Condition: &models.FilterCondition{
			Source: models.SourcePayload, Field: "severity", Operator: models.OperatorEqual, Value: "high",
		}}},
	}}

	admission, err := aggregator.Admit(ctx, job, vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFiltered, admission.Outcome)
	assert.Empty(t, admission.WindowID)

	details, err := store.ExecutionDetails().ByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, execution.DetailDigestFilteredEvent, details[0].Detail)
}

func TestAdmit_BackoffQuietPeriodSendsImmediately(t *testing.T) {
	aggregator, _ := testAggregator(t)
	ctx := context.Background()
	vars := &variables.Context{}

	meta := &models.DigestMetadata{
		Type:          models.DigestBackoff,
		Amount:        5,
		Unit:          models.UnitMinutes,
		BackoffAmount: 1,
		BackoffUnit:   models.UnitMinutes,
	}

	first, err := aggregator.Admit(ctx, digestJob("job-1", "subscriber-1", meta, nil), vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeImmediate, first.Outcome)

	// Activity was just recorded, so the follow-up event buffers.
	second, err := aggregator.Admit(ctx, digestJob("job-2", "subscriber-1", meta, nil), vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, second.Outcome)

	third, err := aggregator.Admit(ctx, digestJob("job-3", "subscriber-1", meta, nil), vars)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, third.Outcome)
}

func TestDue_ListsOnlyExpiredWindows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()

	_, err := store.Open(ctx, &Window{ID: "expired", ClosesAt: now.Add(-time.Minute)}, map[string]any{})
	require.NoError(t, err)

	_, err = store.Open(ctx, &Window{ID: "open", ClosesAt: now.Add(time.Hour)}, map[string]any{})
	require.NoError(t, err)

	due, err := store.Due(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"expired"}, due)
}

func TestWindowEnd_RegularWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	end, err := WindowEnd(now, regularMeta())

	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), end)
}

func TestWindowEnd_TimedDailyBoundary(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	meta := &models.DigestMetadata{
		Type:  models.DigestTimed,
		Timed: &models.TimedConfig{AtTime: "09:30"},
	}

	end, err := WindowEnd(now, meta)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC), end)
}

func TestWindowEnd_TimedWeekdayBoundary(t *testing.T) {
	// 2025-03-10 is a Monday.
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	meta := &models.DigestMetadata{
		Type:  models.DigestTimed,
		Timed: &models.TimedConfig{AtTime: "08:00", WeekDays: []string{"friday"}},
	}

	end, err := WindowEnd(now, meta)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC), end)
}

func TestWindowEnd_InvalidUnitRejected(t *testing.T) {
	meta := &models.DigestMetadata{Type: models.DigestRegular, Amount: 5, Unit: "fortnights"}

	_, err := WindowEnd(time.Now(), meta)

	assert.Error(t, err)
}
