package policy

import (
	"github.com/mbd888/trustline/internal/ledger"
)

// ExclusionReason is the closed set of reasons an event can be dropped from
// scoring. The evaluation cascade is first-match-wins, so each excluded
// event carries exactly one reason.
type ExclusionReason string

const (
	ExclusionNone               ExclusionReason = ""
	ExclusionOverrideDisabled   ExclusionReason = "event_override_disabled"
	ExclusionUnverifiedSensitiv ExclusionReason = "unverified_sensitive_event"
	ExclusionBelowMinConfidence ExclusionReason = "below_min_confidence"
	ExclusionSourceNotAllowed   ExclusionReason = "source_not_allowed"
)

// ExclusionReasons lists every reason, in cascade order.
var ExclusionReasons = []ExclusionReason{
	ExclusionOverrideDisabled,
	ExclusionUnverifiedSensitiv,
	ExclusionBelowMinConfidence,
	ExclusionSourceNotAllowed,
}

// Verdict is the result of evaluating one event against a policy.
type Verdict struct {
	Included        bool
	Reason          ExclusionReason
	SourceFactor    float64
	EventMultiplier float64
}

// defaultSourceFactors maps source types to their default trust multiplier.
// Policy SourceTypeMultipliers override these per tenant.
var defaultSourceFactors = map[string]float64{
	ledger.SourceVerifiedIntegration: 1.0,
	ledger.SourceManual:              0.9,
	ledger.SourceSelfReported:        0.6,
	ledger.SourceUnverified:          0.4,
}

// defaultUnknownSourceFactor applies to source types not in the table.
const defaultUnknownSourceFactor = 0.8

// SourceFactor resolves the trust multiplier for a source type under a
// policy: the tenant override when present (clamped to [0,2]), otherwise
// the default table. Total over any input.
func SourceFactor(sourceType string, p *Policy) float64 {
	if p != nil && p.SourceTypeMultipliers != nil {
		if f, ok := p.SourceTypeMultipliers[sourceType]; ok {
			return clamp(f, 0, MaxSourceFactor)
		}
	}
	if f, ok := defaultSourceFactors[sourceType]; ok {
		return f
	}
	return defaultUnknownSourceFactor
}

// Evaluate decides whether an event counts toward trust scoring and with
// what multipliers. It is a total function: no event shape can make it fail,
// unknown event/source types fall through to defaults. Checks run in a fixed
// order so the attributed exclusion reason is deterministic.
func Evaluate(ev *ledger.Event, p *Policy, confidence float64) Verdict {
	if p == nil {
		p = Default(ev.TenantID)
	}

	// 1. Explicitly disabled event type.
	override, hasOverride := p.EventOverrides[ev.EventType]
	if hasOverride && override.Enabled != nil && !*override.Enabled {
		return Verdict{Reason: ExclusionOverrideDisabled}
	}

	// 2. Sensitive event types need a verified source when required.
	if p.RequireVerifiedSensitive && IsSensitive(ev.EventType) && ev.SourceType != ledger.SourceVerifiedIntegration {
		return Verdict{Reason: ExclusionUnverifiedSensitiv}
	}

	// 3. Confidence floor.
	if confidence < p.MinConfidence {
		return Verdict{Reason: ExclusionBelowMinConfidence}
	}

	// 4. Source allowlist. Empty list means no restriction.
	if len(p.AllowedSources) > 0 {
		allowed := false
		for _, s := range p.AllowedSources {
			if s == ev.Source {
				allowed = true
				break
			}
		}
		if !allowed {
			return Verdict{Reason: ExclusionSourceNotAllowed}
		}
	}

	multiplier := 1.0
	if hasOverride && override.Multiplier != nil {
		multiplier = clamp(*override.Multiplier, 0, MaxEventMultiplier)
	}

	return Verdict{
		Included:        true,
		SourceFactor:    SourceFactor(ev.SourceType, p),
		EventMultiplier: multiplier,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
