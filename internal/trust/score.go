// Package trust implements trust and behavior scoring for agents.
//
// The trust score (0-100, baseline 50) is a time-decayed, policy-filtered,
// weighted sum of ledger events. A separate behavior score (baseline 60)
// models execution reliability over the same stream with its own weight
// table, and feeds an advisory influence back into the trust narrative.
// Both are deterministic arithmetic, so every result can carry a
// per-event trace explaining exactly how it was reached.
package trust

import (
	"time"

	"github.com/mbd888/trustline/internal/ledger"
)

// ScoreResult is the full output of scoring one agent. It is a value
// object computed fresh on every call and never persisted as-is.
type ScoreResult struct {
	AgentID     string `json:"agentId"`
	Score       int    `json:"score"`
	Level       string `json:"level"`
	Explanation string `json:"explanation"`

	// BehaviorInfluence is advisory: it is narrated in the explanation and
	// surfaced here, but never summed into Score. The preflight engine
	// applies its own explicit behavior penalty, and folding both would
	// double-count.
	BehaviorInfluence int `json:"behaviorInfluence"`

	SignalQuality SignalQuality  `json:"signalQuality"`
	Breakdown     Breakdown      `json:"breakdown"`
	Behavior      Behavior       `json:"behavior"`
	History       []HistoryEvent `json:"history"`
	Trace         []TraceEntry   `json:"trace,omitempty"`
	CalculatedAt  time.Time      `json:"calculatedAt"`
}

// SignalQuality measures how much of the included evidence is
// high-confidence and verification-backed.
type SignalQuality struct {
	Score           int    `json:"score"`
	Level           string `json:"level"`
	SampleSize      int    `json:"sampleSize"`
	VerifiedPercent int    `json:"verifiedPercent"`
}

// Breakdown summarizes the recent window and policy filtering.
// The 30-day counts are policy-independent: they describe what was
// reported, not what was admitted.
type Breakdown struct {
	Positive30d       int             `json:"positive30d"`
	Neutral30d        int             `json:"neutral30d"`
	Negative30d       int             `json:"negative30d"`
	SevereNegative30d int             `json:"severeNegative30d"`
	TotalEvents       int             `json:"totalEvents"`
	Policy            PolicyBreakdown `json:"policy"`
}

// PolicyBreakdown counts inclusion and per-reason exclusions.
// Invariant: Included + sum(Excluded) == TotalEvents.
type PolicyBreakdown struct {
	Included int            `json:"included"`
	Excluded map[string]int `json:"excluded,omitempty"`
}

// Behavior is the execution-reliability model's output.
type Behavior struct {
	Score       int    `json:"score"`
	Level       string `json:"level"`
	Explanation string `json:"explanation"`

	// TrustInfluence mirrors ScoreResult.BehaviorInfluence from the
	// behavior model's side.
	TrustInfluence int `json:"trustInfluence"`

	Breakdown BehaviorBreakdown `json:"breakdown"`
}

// BehaviorBreakdown counts deadline-tracked outcomes in the recent window.
type BehaviorBreakdown struct {
	OnTime30d     int  `json:"onTime30d"`
	Missed30d     int  `json:"missed30d"`
	Abandoned30d  int  `json:"abandoned30d"`
	SevereRisk30d int  `json:"severeRisk30d"`
	OnTimeRate30d *int `json:"onTimeRate30d"`
}

// HistoryEvent is the display projection of a ledgered event.
type HistoryEvent struct {
	ID         string      `json:"id"`
	Kind       ledger.Kind `json:"kind"`
	EventType  string      `json:"eventType"`
	Source     string      `json:"source,omitempty"`
	SourceType string      `json:"sourceType,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// TraceEntry records every intermediate factor for one event's contribution.
// Requested explicitly by callers; produced for debugging and audit.
type TraceEntry struct {
	EventID         string      `json:"eventId"`
	EventType       string      `json:"eventType"`
	Kind            ledger.Kind `json:"kind"`
	AgeDays         float64     `json:"ageDays"`
	Decay           float64     `json:"decay"`
	BaseWeight      float64     `json:"baseWeight"`
	SourceFactor    float64     `json:"sourceFactor"`
	Confidence      float64     `json:"confidence"`
	EventMultiplier float64     `json:"eventMultiplier"`
	Contribution    float64     `json:"contribution"`
	Included        bool        `json:"included"`
	ExclusionReason string      `json:"exclusionReason,omitempty"`
}
