package trust

import (
	"context"
	"log/slog"
	"time"

	"github.com/mbd888/trustline/internal/metrics"
)

// Worker periodically snapshots trust scores for every known agent.
type Worker struct {
	svc      *Service
	store    SnapshotStore
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewWorker creates a trust snapshot worker.
// interval is typically 1 hour in production, 10 seconds in demo mode.
func NewWorker(svc *Service, store SnapshotStore, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		svc:      svc,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the snapshot loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on start
	w.snapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.snapshot(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) snapshot(ctx context.Context) {
	tenants, err := w.svc.Events().ListTenantIDs(ctx)
	if err != nil {
		w.logger.Warn("trust snapshot failed to list tenants", "error", err)
		return
	}

	var snaps []*Snapshot
	for _, tenantID := range tenants {
		agents, err := w.svc.Events().ListAgentIDs(ctx, tenantID)
		if err != nil {
			w.logger.Warn("trust snapshot failed to list agents", "tenant", tenantID, "error", err)
			continue
		}
		for _, agentID := range agents {
			res, err := w.svc.Score(ctx, tenantID, agentID, ScoreOptions{})
			if err != nil {
				w.logger.Warn("trust snapshot failed to score agent", "tenant", tenantID, "agent", agentID, "error", err)
				continue
			}
			snaps = append(snaps, SnapshotFromResult(tenantID, res))
		}
	}

	if len(snaps) == 0 {
		return
	}

	if err := w.store.SaveBatch(ctx, snaps); err != nil {
		w.logger.Warn("trust snapshot failed to save", "error", err, "count", len(snaps))
		return
	}
	metrics.SnapshotsSavedTotal.Add(float64(len(snaps)))

	w.logger.Info("trust snapshot completed", "agents", len(snaps))
}
