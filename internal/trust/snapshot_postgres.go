package trust

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/mbd888/trustline/internal/ledger"
)

// PostgresSnapshotStore implements SnapshotStore backed by PostgreSQL.
type PostgresSnapshotStore struct {
	db *sql.DB
}

// NewPostgresSnapshotStore creates a PostgreSQL-backed snapshot store.
func NewPostgresSnapshotStore(db *sql.DB) *PostgresSnapshotStore {
	return &PostgresSnapshotStore{db: db}
}

func (p *PostgresSnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	const q = `
		INSERT INTO trust_snapshots
			(tenant_id, agent_id, score, level, behavior_score, behavior_level,
			 signal_quality, positive_30d, negative_30d, severe_negative_30d, total_events)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, created_at`

	return p.db.QueryRowContext(ctx, q,
		snap.TenantID,
		snap.AgentID,
		snap.Score,
		snap.Level,
		snap.BehaviorScore,
		snap.BehaviorLevel,
		snap.SignalQuality,
		snap.Positive30d,
		snap.Negative30d,
		snap.SevereNegative30d,
		snap.TotalEvents,
	).Scan(&snap.ID, &snap.CreatedAt)
}

func (p *PostgresSnapshotStore) SaveBatch(ctx context.Context, snaps []*Snapshot) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trust_snapshots
			(tenant_id, agent_id, score, level, behavior_score, behavior_level,
			 signal_quality, positive_30d, negative_30d, severe_negative_30d, total_events)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range snaps {
		_, err := stmt.ExecContext(ctx, s.TenantID, s.AgentID,
			s.Score, s.Level, s.BehaviorScore, s.BehaviorLevel,
			s.SignalQuality, s.Positive30d, s.Negative30d,
			s.SevereNegative30d, s.TotalEvents)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *PostgresSnapshotStore) Query(ctx context.Context, q HistoryQuery) ([]*Snapshot, error) {
	query := `
		SELECT id, tenant_id, agent_id, score, level, behavior_score, behavior_level,
			   signal_quality, positive_30d, negative_30d, severe_negative_30d,
			   total_events, created_at
		FROM trust_snapshots
		WHERE tenant_id = $1 AND agent_id = $2`

	args := []interface{}{q.TenantID, ledger.NormalizeAgentID(q.AgentID)}
	argIdx := 3

	if !q.From.IsZero() {
		query += " AND created_at >= $" + strconv.Itoa(argIdx)
		args = append(args, q.From)
		argIdx++
	}
	if !q.To.IsZero() {
		query += " AND created_at <= $" + strconv.Itoa(argIdx)
		args = append(args, q.To)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT $" + strconv.Itoa(argIdx)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSnapshots(rows)
}

func (p *PostgresSnapshotStore) Latest(ctx context.Context, tenantID, agentID string) (*Snapshot, error) {
	const q = `
		SELECT id, tenant_id, agent_id, score, level, behavior_score, behavior_level,
			   signal_quality, positive_30d, negative_30d, severe_negative_30d,
			   total_events, created_at
		FROM trust_snapshots
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	row := p.db.QueryRowContext(ctx, q, tenantID, ledger.NormalizeAgentID(agentID))
	s := &Snapshot{}
	err := row.Scan(&s.ID, &s.TenantID, &s.AgentID, &s.Score, &s.Level,
		&s.BehaviorScore, &s.BehaviorLevel, &s.SignalQuality,
		&s.Positive30d, &s.Negative30d, &s.SevereNegative30d,
		&s.TotalEvents, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	var out []*Snapshot
	for rows.Next() {
		s := &Snapshot{}
		if err := rows.Scan(&s.ID, &s.TenantID, &s.AgentID, &s.Score, &s.Level,
			&s.BehaviorScore, &s.BehaviorLevel, &s.SignalQuality,
			&s.Positive30d, &s.Negative30d, &s.SevereNegative30d,
			&s.TotalEvents, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
