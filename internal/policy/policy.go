// Package policy provides tenant-scoped scoring policies.
//
// A policy controls which ledger events are admitted into trust scoring and
// with what multiplier: confidence floors, source allowlists, per-source-type
// multipliers, per-event-type overrides, and a verified-source requirement
// for sensitive event types. Policies are plain data merged onto defaults;
// there is no policy class hierarchy.
package policy

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrPolicyNotFound = errors.New("policy: not found")
	ErrUnknownPreset  = errors.New("policy: unknown preset")
)

// Multiplier bounds. Source-type factors cap at 2x, per-event multipliers at 3x.
const (
	MaxSourceFactor    = 2.0
	MaxEventMultiplier = 3.0
)

// EventOverride tunes or disables a single event type.
// Nil fields mean "no override for that aspect".
type EventOverride struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty"`
}

// Policy is a tenant's scoring configuration.
type Policy struct {
	TenantID                 string                   `json:"tenantId"`
	Preset                   string                   `json:"preset,omitempty"`
	MinConfidence            float64                  `json:"minConfidence"`
	AllowedSources           []string                 `json:"allowedSources,omitempty"`
	SourceTypeMultipliers    map[string]float64       `json:"sourceTypeMultipliers,omitempty"`
	EventOverrides           map[string]EventOverride `json:"eventOverrides,omitempty"`
	RequireVerifiedSensitive bool                     `json:"requireVerifiedSensitive"`
	MinSignalQuality         float64                  `json:"minSignalQuality"`
	UpdatedAt                time.Time                `json:"updatedAt"`
}

// sensitiveEventTypes is the fixed set of event categories that require a
// verified source when RequireVerifiedSensitive is set. Not tenant-configurable.
var sensitiveEventTypes = map[string]bool{
	"payment_success":      true,
	"failed_payment":       true,
	"security_flag":        true,
	"abuse_report":         true,
	"api_key_leak":         true,
	"impersonation_report": true,
	"unresolved_dispute":   true,
}

// IsSensitive reports whether an event type belongs to the fixed sensitive set.
func IsSensitive(eventType string) bool {
	return sensitiveEventTypes[eventType]
}

// Default returns the permissive policy applied when a tenant has none stored.
func Default(tenantID string) *Policy {
	return &Policy{
		TenantID:      tenantID,
		MinConfidence: 0,
	}
}

// Preset names.
const (
	PresetOpen     = "open"
	PresetBalanced = "balanced"
	PresetStrict   = "strict"
)

// FromPreset builds a complete policy from a named preset. Applying a preset
// replaces the stored policy wholesale, not as a merge.
func FromPreset(tenantID, preset string) (*Policy, error) {
	switch preset {
	case PresetOpen:
		return &Policy{
			TenantID:      tenantID,
			Preset:        PresetOpen,
			MinConfidence: 0,
		}, nil
	case PresetBalanced:
		return &Policy{
			TenantID:      tenantID,
			Preset:        PresetBalanced,
			MinConfidence: 0.35,
			SourceTypeMultipliers: map[string]float64{
				"unverified":    0.5,
				"self_reported": 0.7,
			},
			RequireVerifiedSensitive: true,
		}, nil
	case PresetStrict:
		return &Policy{
			TenantID:      tenantID,
			Preset:        PresetStrict,
			MinConfidence: 0.75,
			SourceTypeMultipliers: map[string]float64{
				"unverified": 0,
			},
			RequireVerifiedSensitive: true,
			MinSignalQuality:         55,
		}, nil
	default:
		return nil, ErrUnknownPreset
	}
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	cp := *p
	if p.AllowedSources != nil {
		cp.AllowedSources = append([]string(nil), p.AllowedSources...)
	}
	if p.SourceTypeMultipliers != nil {
		cp.SourceTypeMultipliers = make(map[string]float64, len(p.SourceTypeMultipliers))
		for k, v := range p.SourceTypeMultipliers {
			cp.SourceTypeMultipliers[k] = v
		}
	}
	if p.EventOverrides != nil {
		cp.EventOverrides = make(map[string]EventOverride, len(p.EventOverrides))
		for k, v := range p.EventOverrides {
			ov := EventOverride{}
			if v.Enabled != nil {
				b := *v.Enabled
				ov.Enabled = &b
			}
			if v.Multiplier != nil {
				f := *v.Multiplier
				ov.Multiplier = &f
			}
			cp.EventOverrides[k] = ov
		}
	}
	return &cp
}

// Store persists one policy per tenant.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Policy, error)
	Set(ctx context.Context, p *Policy) error
	Delete(ctx context.Context, tenantID string) error
}

// GetOrDefault loads the tenant's policy, falling back to the default when
// none is stored.
func GetOrDefault(ctx context.Context, store Store, tenantID string) (*Policy, error) {
	p, err := store.Get(ctx, tenantID)
	if err == ErrPolicyNotFound {
		return Default(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
