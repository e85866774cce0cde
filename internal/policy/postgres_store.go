package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists tenant policies in PostgreSQL.
// The two nested maps are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed policy store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, tenantID string) (*Policy, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT tenant_id, preset, min_confidence, allowed_sources, source_type_multipliers,
		       event_overrides, require_verified_sensitive, min_signal_quality, updated_at
		FROM policies WHERE tenant_id = $1`, tenantID)

	pol := &Policy{}
	var allowedJSON, multipliersJSON, overridesJSON []byte
	err := row.Scan(&pol.TenantID, &pol.Preset, &pol.MinConfidence, &allowedJSON,
		&multipliersJSON, &overridesJSON, &pol.RequireVerifiedSensitive,
		&pol.MinSignalQuality, &pol.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(allowedJSON, &pol.AllowedSources); err != nil {
		return nil, fmt.Errorf("corrupt allowed_sources for tenant %s: %w", tenantID, err)
	}
	if err := json.Unmarshal(multipliersJSON, &pol.SourceTypeMultipliers); err != nil {
		return nil, fmt.Errorf("corrupt source_type_multipliers for tenant %s: %w", tenantID, err)
	}
	if err := json.Unmarshal(overridesJSON, &pol.EventOverrides); err != nil {
		return nil, fmt.Errorf("corrupt event_overrides for tenant %s: %w", tenantID, err)
	}
	return pol, nil
}

func (p *PostgresStore) Set(ctx context.Context, pol *Policy) error {
	allowedJSON, err := json.Marshal(pol.AllowedSources)
	if err != nil {
		return err
	}
	multipliersJSON, err := json.Marshal(pol.SourceTypeMultipliers)
	if err != nil {
		return err
	}
	overridesJSON, err := json.Marshal(pol.EventOverrides)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO policies (tenant_id, preset, min_confidence, allowed_sources, source_type_multipliers,
		                      event_overrides, require_verified_sensitive, min_signal_quality, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE SET
			preset = EXCLUDED.preset,
			min_confidence = EXCLUDED.min_confidence,
			allowed_sources = EXCLUDED.allowed_sources,
			source_type_multipliers = EXCLUDED.source_type_multipliers,
			event_overrides = EXCLUDED.event_overrides,
			require_verified_sensitive = EXCLUDED.require_verified_sensitive,
			min_signal_quality = EXCLUDED.min_signal_quality,
			updated_at = EXCLUDED.updated_at`,
		pol.TenantID, pol.Preset, pol.MinConfidence, allowedJSON, multipliersJSON,
		overridesJSON, pol.RequireVerifiedSensitive, pol.MinSignalQuality, pol.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context, tenantID string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM policies WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}
