package preflight

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists preflight decisions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Record(ctx context.Context, d *Decision) error {
	trustJSON, err := json.Marshal(d.Trust)
	if err != nil {
		return err
	}
	policyJSON, err := json.Marshal(d.Policy)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO preflight_decisions (id, tenant_id, agent_id, action_type, outcome, reason, trust, policy, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.TenantID, d.AgentID, d.ActionType, string(d.Outcome), d.Reason,
		trustJSON, policyJSON, d.EvaluatedAt,
	)
	return err
}

func (p *PostgresStore) ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Decision, error) {
	query := `
		SELECT id, tenant_id, agent_id, action_type, outcome, reason, trust, policy, evaluated_at
		FROM preflight_decisions
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY evaluated_at DESC, id DESC`
	args := []interface{}{tenantID, agentID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Decision
	for rows.Next() {
		d := &Decision{}
		var outcome string
		var trustJSON, policyJSON []byte
		if err := rows.Scan(&d.ID, &d.TenantID, &d.AgentID, &d.ActionType, &outcome,
			&d.Reason, &trustJSON, &policyJSON, &d.EvaluatedAt); err != nil {
			return nil, err
		}
		d.Outcome = Outcome(outcome)
		if err := json.Unmarshal(trustJSON, &d.Trust); err != nil {
			return nil, fmt.Errorf("corrupt trust snapshot for decision %s: %w", d.ID, err)
		}
		if err := json.Unmarshal(policyJSON, &d.Policy); err != nil {
			return nil, fmt.Errorf("corrupt policy snapshot for decision %s: %w", d.ID, err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
