package trust

import "github.com/mbd888/trustline/internal/ledger"

// Well-known event types the behavior model tracks explicitly.
const (
	EventCompletedOnTime = "completed_task_on_time"
	EventMissedDeadline  = "missed_deadline"
	EventTaskAbandoned   = "task_abandoned"
)

// Config holds every tunable of the scoring model: weight tables, decay
// half-life, baselines and bounds. It is injected into the Engine at
// construction so tests can score against alternate tables; production
// uses DefaultConfig.
type Config struct {
	// Decay: an event loses half its weight every HalfLifeDays.
	HalfLifeDays float64

	// RecentWindowDays bounds the breakdown counters (30-day window).
	RecentWindowDays float64

	TrustBaseline    float64
	BehaviorBaseline float64

	// TrustWeights maps event types to signed base weights. Types not in
	// the table fall back to TrustKindFallback by event kind.
	TrustWeights      map[string]float64
	TrustKindFallback map[ledger.Kind]float64

	// BehaviorWeights is the behavior model's own table. The fallbacks
	// deliberately differ from the trust model's (+4/0/-6 vs +5/0/-8);
	// the two models are tuned independently.
	BehaviorWeights      map[string]float64
	BehaviorKindFallback map[ledger.Kind]float64

	// SourceQuality feeds the signal-quality score per source type.
	SourceQuality        map[string]float64
	UnknownSourceQuality float64
	// MinSignalWeight floors each included event's signal weight so heavily
	// decayed evidence still registers in the quality denominator.
	MinSignalWeight float64

	// SevereRiskTypes drive the behavior trust penalty.
	SevereRiskTypes       map[string]bool
	SeverePenaltyPerEvent float64
	MaxSeverePenalty      float64

	HistorySize       int
	DefaultTraceLimit int
	MaxTraceLimit     int
}

// DefaultConfig returns the production scoring model.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:     30,
		RecentWindowDays: 30,
		TrustBaseline:    50,
		BehaviorBaseline: 60,

		TrustWeights: map[string]float64{
			EventCompletedOnTime:   8,
			"payment_success":      6,
			"repeat_client":        6,
			"positive_review":      5,
			"dispute_resolved":     3,
			EventMissedDeadline:    -6,
			"negative_review":      -7,
			"failed_payment":       -10,
			EventTaskAbandoned:     -12,
			"unresolved_dispute":   -15,
			"abuse_report":         -20,
			"security_flag":        -25,
			"impersonation_report": -25,
			"api_key_leak":         -35,
		},
		TrustKindFallback: map[ledger.Kind]float64{
			ledger.KindPositive: 5,
			ledger.KindNeutral:  0,
			ledger.KindNegative: -8,
		},

		BehaviorWeights: map[string]float64{
			EventCompletedOnTime:   10,
			"repeat_client":        4,
			"dispute_resolved":     2,
			"failed_payment":       -6,
			"unresolved_dispute":   -8,
			"abuse_report":         -8,
			EventMissedDeadline:    -10,
			"security_flag":        -10,
			"impersonation_report": -10,
			"api_key_leak":         -12,
			EventTaskAbandoned:     -14,
		},
		BehaviorKindFallback: map[ledger.Kind]float64{
			ledger.KindPositive: 4,
			ledger.KindNeutral:  0,
			ledger.KindNegative: -6,
		},

		SourceQuality: map[string]float64{
			ledger.SourceVerifiedIntegration: 1.0,
			ledger.SourceManual:              0.85,
			ledger.SourceSelfReported:        0.55,
			ledger.SourceUnverified:          0.35,
		},
		UnknownSourceQuality: 0.7,
		MinSignalWeight:      0.05,

		SevereRiskTypes: map[string]bool{
			"api_key_leak":         true,
			"security_flag":        true,
			"abuse_report":         true,
			"impersonation_report": true,
		},
		SeverePenaltyPerEvent: 4,
		MaxSeverePenalty:      12,

		HistorySize:       10,
		DefaultTraceLimit: 5,
		MaxTraceLimit:     20,
	}
}
