package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/mbd888/trustline/internal/pagination"
)

// PostgresStore persists events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed event ledger.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, ev *Event) error {
	var confidence sql.NullFloat64
	if ev.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *ev.Confidence, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO events (id, tenant_id, agent_id, kind, event_type, details, source, source_type, confidence, external_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		ev.ID, ev.TenantID, ev.AgentID, string(ev.Kind), ev.EventType, ev.Details,
		ev.Source, ev.SourceType, confidence, ev.ExternalEventID, ev.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

const eventColumns = `id, tenant_id, agent_id, kind, event_type, details, source, source_type, confidence, COALESCE(external_event_id, ''), created_at`

func (p *PostgresStore) ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE tenant_id = $1 AND agent_id = $2
		ORDER BY created_at DESC, id DESC`, eventColumns)
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

	var result []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (p *PostgresStore) ListByAgentPage(ctx context.Context, tenantID, agentID string, before *pagination.Cursor, limit int) ([]*Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE tenant_id = $1 AND agent_id = $2`, eventColumns)
	args := []interface{}{tenantID, agentID}
	if before != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetByExternalID(ctx context.Context, tenantID, externalEventID string) (*Event, error) {
	if externalEventID == "" {
		return nil, ErrEventNotFound
	}
	row := p.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM events
		WHERE tenant_id = $1 AND external_event_id = $2`, eventColumns),
		tenantID, externalEventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	return ev, err
}

func (p *PostgresStore) ListAgentIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT agent_id FROM events WHERE tenant_id = $1 ORDER BY agent_id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanStrings(rows)
}

func (p *PostgresStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM events ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanStrings(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	ev := &Event{}
	var kind string
	var confidence sql.NullFloat64
	if err := row.Scan(&ev.ID, &ev.TenantID, &ev.AgentID, &kind, &ev.EventType,
		&ev.Details, &ev.Source, &ev.SourceType, &confidence, &ev.ExternalEventID, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Kind = Kind(kind)
	if confidence.Valid {
		c := confidence.Float64
		ev.Confidence = &c
	}
	return ev, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
