package trust

import (
	"context"
	"time"
)

// Snapshot is a point-in-time trust score stored for history.
type Snapshot struct {
	ID                int       `json:"id"`
	TenantID          string    `json:"tenantId"`
	AgentID           string    `json:"agentId"`
	Score             int       `json:"score"`
	Level             string    `json:"level"`
	BehaviorScore     int       `json:"behaviorScore"`
	BehaviorLevel     string    `json:"behaviorLevel"`
	SignalQuality     int       `json:"signalQuality"`
	Positive30d       int       `json:"positive30d"`
	Negative30d       int       `json:"negative30d"`
	SevereNegative30d int       `json:"severeNegative30d"`
	TotalEvents       int       `json:"totalEvents"`
	CreatedAt         time.Time `json:"createdAt"`
}

// SnapshotFromResult projects a scoring result into a Snapshot.
func SnapshotFromResult(tenantID string, res *ScoreResult) *Snapshot {
	return &Snapshot{
		TenantID:          tenantID,
		AgentID:           res.AgentID,
		Score:             res.Score,
		Level:             res.Level,
		BehaviorScore:     res.Behavior.Score,
		BehaviorLevel:     res.Behavior.Level,
		SignalQuality:     res.SignalQuality.Score,
		Positive30d:       res.Breakdown.Positive30d,
		Negative30d:       res.Breakdown.Negative30d,
		SevereNegative30d: res.Breakdown.SevereNegative30d,
		TotalEvents:       res.Breakdown.TotalEvents,
		CreatedAt:         time.Now(),
	}
}

// HistoryQuery holds query parameters for historical scores.
type HistoryQuery struct {
	TenantID string
	AgentID  string
	From     time.Time
	To       time.Time
	Limit    int
}

// SnapshotStore persists trust snapshots.
type SnapshotStore interface {
	// Save persists a single snapshot.
	Save(ctx context.Context, snap *Snapshot) error

	// SaveBatch persists multiple snapshots in one call.
	SaveBatch(ctx context.Context, snaps []*Snapshot) error

	// Query returns historical snapshots matching the query, newest first.
	Query(ctx context.Context, q HistoryQuery) ([]*Snapshot, error)

	// Latest returns the most recent snapshot for an agent.
	Latest(ctx context.Context, tenantID, agentID string) (*Snapshot, error)
}
