package trust

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/policy"
)

func TestWorkerSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewEngine(), ledger.NewMemoryStore(), policy.NewMemoryStore(), nil)

	for _, in := range []*ledger.Input{
		{AgentID: "agent-good", Kind: "positive", EventType: "completed_task_on_time", SourceType: "verified_integration"},
		{AgentID: "agent-good", Kind: "positive", EventType: "payment_success", SourceType: "verified_integration"},
		{AgentID: "agent-bad", Kind: "negative", EventType: "api_key_leak", SourceType: "verified_integration"},
	} {
		if _, err := svc.Ingest(ctx, "tenant-1", in); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	store := NewMemorySnapshotStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	worker := NewWorker(svc, store, 100*time.Millisecond, logger)

	runCtx, cancel := context.WithTimeout(ctx, 350*time.Millisecond)
	defer cancel()

	go worker.Start(runCtx)

	// Wait for at least one snapshot cycle
	time.Sleep(200 * time.Millisecond)

	good, err := store.Query(ctx, HistoryQuery{TenantID: "tenant-1", AgentID: "agent-good", Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(good) == 0 {
		t.Fatal("expected snapshots for agent-good")
	}
	if good[0].Score <= 50 {
		t.Errorf("expected score above baseline, got %d", good[0].Score)
	}
	if good[0].Positive30d != 2 {
		t.Errorf("expected 2 positive events, got %d", good[0].Positive30d)
	}

	bad, err := store.Query(ctx, HistoryQuery{TenantID: "tenant-1", AgentID: "agent-bad", Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(bad) == 0 {
		t.Fatal("expected snapshots for agent-bad")
	}
	if bad[0].Score >= good[0].Score {
		t.Errorf("expected agent-bad score (%d) below agent-good (%d)", bad[0].Score, good[0].Score)
	}
	if bad[0].SevereNegative30d != 1 {
		t.Errorf("expected 1 severe event, got %d", bad[0].SevereNegative30d)
	}

	cancel()
	worker.Stop()
}

func TestWorkerEmptyLedger(t *testing.T) {
	svc := NewService(NewEngine(), ledger.NewMemoryStore(), policy.NewMemoryStore(), nil)
	store := NewMemorySnapshotStore()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	worker := NewWorker(svc, store, 100*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go worker.Start(ctx)
	time.Sleep(150 * time.Millisecond)

	// No agents means no snapshots, but no crash either
	snaps, err := store.Query(context.Background(), HistoryQuery{TenantID: "tenant-1", AgentID: "nobody", Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}

	cancel()
	worker.Stop()
}

func TestMemorySnapshotStoreQueryAndLatest(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	old := &Snapshot{TenantID: "tenant-1", AgentID: "agent-1", Score: 50, Level: "Low", CreatedAt: time.Now().Add(-2 * time.Hour)}
	mid := &Snapshot{TenantID: "tenant-1", AgentID: "agent-1", Score: 58, Level: "Medium", CreatedAt: time.Now().Add(-time.Hour)}
	newest := &Snapshot{TenantID: "tenant-1", AgentID: "agent-1", Score: 64, Level: "Medium", CreatedAt: time.Now()}
	other := &Snapshot{TenantID: "tenant-2", AgentID: "agent-1", Score: 80, Level: "High", CreatedAt: time.Now()}

	for _, s := range []*Snapshot{old, mid, newest, other} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	snaps, err := store.Query(ctx, HistoryQuery{TenantID: "tenant-1", AgentID: "agent-1", Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots (tenant isolation), got %d", len(snaps))
	}
	if snaps[0].Score != 64 {
		t.Errorf("expected newest first, got score %d", snaps[0].Score)
	}

	// Time-bounded query.
	window, _ := store.Query(ctx, HistoryQuery{
		TenantID: "tenant-1",
		AgentID:  "agent-1",
		From:     time.Now().Add(-90 * time.Minute),
		Limit:    10,
	})
	if len(window) != 2 {
		t.Errorf("expected 2 snapshots in window, got %d", len(window))
	}

	latest, err := store.Latest(ctx, "tenant-1", "agent-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Score != 64 {
		t.Errorf("expected latest score 64, got %+v", latest)
	}

	missing, err := store.Latest(ctx, "tenant-1", "nobody")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown agent, got %+v", missing)
	}
}

func TestSnapshotFromResult(t *testing.T) {
	e := NewEngine()
	events := []*ledger.Event{
		testEvent(ledger.KindPositive, EventCompletedOnTime, ledger.SourceVerifiedIntegration, 1.0, 0),
		testEvent(ledger.KindNegative, "security_flag", ledger.SourceVerifiedIntegration, 1.0, 0),
	}
	res := e.ScoreAgent("agent-1", events, Options{Now: testNow})

	snap := SnapshotFromResult("tenant-1", res)

	if snap.TenantID != "tenant-1" || snap.AgentID != "agent-1" {
		t.Errorf("identity mismatch: %+v", snap)
	}
	if snap.Score != res.Score || snap.Level != res.Level {
		t.Errorf("score mismatch: %+v vs %+v", snap, res)
	}
	if snap.BehaviorScore != res.Behavior.Score {
		t.Errorf("behavior mismatch")
	}
	if snap.SevereNegative30d != 1 {
		t.Errorf("SevereNegative30d = %d, want 1", snap.SevereNegative30d)
	}
	if snap.TotalEvents != 2 {
		t.Errorf("TotalEvents = %d, want 2", snap.TotalEvents)
	}
}
