package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/policy"
)

func newTestService() *Service {
	return NewService(NewEngine(), ledger.NewMemoryStore(), policy.NewMemoryStore(), nil)
}

func TestServiceIngestAndScore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	res, err := svc.Ingest(ctx, "tenant-1", &ledger.Input{
		AgentID:    "agent-1",
		Kind:       "positive",
		EventType:  "completed_task_on_time",
		SourceType: "verified_integration",
	})
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Equal(t, 50, res.PreviousScore)
	assert.Equal(t, 58, res.Score)
	assert.NotEmpty(t, res.Event.ID)
	assert.Contains(t, res.Event.ID, "evt_")

	score, err := svc.Score(ctx, "tenant-1", "agent-1", ScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 58, score.Score)
	assert.Equal(t, 1, score.Breakdown.TotalEvents)
}

func TestServiceIngestValidationError(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Ingest(ctx, "tenant-1", &ledger.Input{AgentID: "agent-1", Kind: "wonderful"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "kind")
}

func TestServiceIngestIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	in := &ledger.Input{
		AgentID:         "agent-1",
		Kind:            "positive",
		EventType:       "completed_task_on_time",
		SourceType:      "verified_integration",
		ExternalEventID: "github-pr-42",
	}

	first, err := svc.Ingest(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.Ingest(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Event.ID, second.Event.ID)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, second.PreviousScore, second.Score, "replay must not move the score")

	events, _ := svc.Events().ListByAgent(ctx, "tenant-1", "agent-1", 0)
	assert.Len(t, events, 1, "replay must not append")
}

func TestServiceScoreAppliesTenantPolicy(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	strict, err := policy.FromPreset("tenant-1", policy.PresetStrict)
	require.NoError(t, err)
	require.NoError(t, svc.Policies().Set(ctx, strict))

	// Unverified event with confidence below the strict floor (0.75).
	_, err = svc.Ingest(ctx, "tenant-1", &ledger.Input{
		AgentID:    "agent-1",
		Kind:       "positive",
		EventType:  "completed_task_on_time",
		SourceType: "unverified",
	})
	require.NoError(t, err)

	res, err := svc.Score(ctx, "tenant-1", "agent-1", ScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Score, "excluded event must not move the score")
	assert.Equal(t, 0, res.Breakdown.Policy.Included)
	assert.Equal(t, 1, res.Breakdown.Policy.Excluded["below_min_confidence"])
}

func TestServiceScoreTenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Ingest(ctx, "tenant-1", &ledger.Input{
		AgentID:    "agent-1",
		Kind:       "negative",
		EventType:  "api_key_leak",
		SourceType: "verified_integration",
	})
	require.NoError(t, err)

	other, err := svc.Score(ctx, "tenant-2", "agent-1", ScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50, other.Score, "another tenant's events must not leak")
	assert.Equal(t, 0, other.Breakdown.TotalEvents)
}

func TestServiceScoreWithTrace(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	for _, et := range []string{"completed_task_on_time", "payment_success", "positive_review"} {
		_, err := svc.Ingest(ctx, "tenant-1", &ledger.Input{
			AgentID:    "agent-1",
			Kind:       "positive",
			EventType:  et,
			SourceType: "verified_integration",
		})
		require.NoError(t, err)
	}

	res, err := svc.Score(ctx, "tenant-1", "agent-1", ScoreOptions{IncludeTrace: true, TraceLimit: 2})
	require.NoError(t, err)
	require.Len(t, res.Trace, 2)
	assert.Equal(t, "completed_task_on_time", res.Trace[0].EventType, "largest contribution first")

	plain, err := svc.Score(ctx, "tenant-1", "agent-1", ScoreOptions{})
	require.NoError(t, err)
	assert.Nil(t, plain.Trace)
}
