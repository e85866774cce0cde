package trust

import (
	"math"
	"sort"
	"time"

	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/policy"
)

// Engine computes trust scores. It holds no mutable state and is safe for
// concurrent use; every call reads the clock once and returns a fresh
// ScoreResult.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the production scoring model.
func NewEngine() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// NewEngineWithConfig creates an engine with a custom scoring model.
func NewEngineWithConfig(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Options controls a single scoring call.
type Options struct {
	// Policy filters and reweights events. Nil means the default policy.
	Policy *policy.Policy

	// IncludeTrace emits per-event contribution records, top TraceLimit
	// by absolute magnitude. Off by default to avoid cost when unused.
	IncludeTrace bool
	TraceLimit   int

	// Now overrides the clock for deterministic tests. Zero means time.Now().
	Now time.Time
}

// eventFactors are the shared per-event primitives both models consume.
type eventFactors struct {
	ageDays      float64
	decay        float64
	confidence   float64
	sourceFactor float64
}

// ScoreAgent scores one agent from its event stream. Deterministic given
// events, policy and Now; total over any event shape, since malformed
// optional fields degrade to documented defaults rather than errors.
func (e *Engine) ScoreAgent(agentID string, events []*ledger.Event, opts Options) *ScoreResult {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	pol := opts.Policy

	result := &ScoreResult{
		AgentID:      ledger.NormalizeAgentID(agentID),
		CalculatedAt: now,
		Breakdown: Breakdown{
			TotalEvents: len(events),
			Policy:      PolicyBreakdown{Excluded: map[string]int{}},
		},
	}

	trustScore := e.cfg.TrustBaseline
	behaviorScore := e.cfg.BehaviorBaseline

	var signalWeightSum, signalQualitySum float64
	includedCount, verifiedIncluded := 0, 0

	var behavior BehaviorBreakdown
	var trace []TraceEntry

	for _, ev := range events {
		f := e.factors(ev, pol, now)
		recent := f.ageDays <= e.cfg.RecentWindowDays

		// 30-day breakdown is policy-independent.
		if recent {
			switch ev.Kind {
			case ledger.KindPositive:
				result.Breakdown.Positive30d++
			case ledger.KindNegative:
				result.Breakdown.Negative30d++
				if policy.IsSensitive(ev.EventType) {
					result.Breakdown.SevereNegative30d++
				}
			default:
				result.Breakdown.Neutral30d++
			}
			switch ev.EventType {
			case EventCompletedOnTime:
				behavior.OnTime30d++
			case EventMissedDeadline:
				behavior.Missed30d++
			case EventTaskAbandoned:
				behavior.Abandoned30d++
			}
			if e.cfg.SevereRiskTypes[ev.EventType] {
				behavior.SevereRisk30d++
			}
		}

		// Behavior uses the full stream; policy exclusions apply to trust only.
		behaviorScore += e.behaviorWeight(ev) * f.decay * f.confidence * f.sourceFactor

		verdict := policy.Evaluate(ev, pol, f.confidence)
		contribution := 0.0
		if verdict.Included {
			contribution = e.trustWeight(ev) * f.decay * verdict.SourceFactor * f.confidence * verdict.EventMultiplier
			trustScore += contribution

			result.Breakdown.Policy.Included++
			includedCount++
			if ev.SourceType == ledger.SourceVerifiedIntegration {
				verifiedIncluded++
			}
			w := math.Max(e.cfg.MinSignalWeight, f.decay*f.confidence)
			signalWeightSum += w
			signalQualitySum += w * e.sourceQuality(ev.SourceType)
		} else {
			result.Breakdown.Policy.Excluded[string(verdict.Reason)]++
		}

		if opts.IncludeTrace {
			trace = append(trace, TraceEntry{
				EventID:         ev.ID,
				EventType:       ev.EventType,
				Kind:            ev.Kind,
				AgeDays:         round3(f.ageDays),
				Decay:           round3(f.decay),
				BaseWeight:      e.trustWeight(ev),
				SourceFactor:    verdict.SourceFactor,
				Confidence:      f.confidence,
				EventMultiplier: verdict.EventMultiplier,
				Contribution:    round3(contribution),
				Included:        verdict.Included,
				ExclusionReason: string(verdict.Reason),
			})
		}
	}

	// Behavior severe-risk penalty, applied before clamping.
	penalty := math.Min(e.cfg.MaxSeverePenalty, e.cfg.SeverePenaltyPerEvent*float64(behavior.SevereRisk30d))
	result.Behavior.Score = clampScore(behaviorScore - penalty)
	result.Behavior.Level = behaviorLevel(result.Behavior.Score)
	result.Behavior.Breakdown = behavior
	if total := behavior.OnTime30d + behavior.Missed30d; total > 0 {
		rate := int(math.Round(100 * float64(behavior.OnTime30d) / float64(total)))
		result.Behavior.Breakdown.OnTimeRate30d = &rate
	}

	influence := behaviorInfluence(result.Behavior.Score, behavior.Abandoned30d)
	result.BehaviorInfluence = influence
	result.Behavior.TrustInfluence = influence

	result.Score = clampScore(trustScore)
	result.Level = trustLevel(result.Score)
	result.Explanation = trustExplanation(result.Level, result.Breakdown, influence)
	result.Behavior.Explanation = behaviorExplanation(result.Behavior.Level, result.Behavior.Breakdown)

	result.SignalQuality = signalQuality(signalWeightSum, signalQualitySum, includedCount, verifiedIncluded)

	result.History = e.history(events)

	if opts.IncludeTrace {
		sort.SliceStable(trace, func(i, j int) bool {
			return math.Abs(trace[i].Contribution) > math.Abs(trace[j].Contribution)
		})
		limit := opts.TraceLimit
		if limit == 0 {
			limit = e.cfg.DefaultTraceLimit
		}
		if limit < 1 {
			limit = 1
		}
		if limit > e.cfg.MaxTraceLimit {
			limit = e.cfg.MaxTraceLimit
		}
		if len(trace) > limit {
			trace = trace[:limit]
		}
		result.Trace = trace
	}

	return result
}

// factors computes the decay/confidence/source primitives shared by the
// trust and behavior models.
func (e *Engine) factors(ev *ledger.Event, pol *policy.Policy, now time.Time) eventFactors {
	// Missing timestamps are treated as "now" (age zero, no decay).
	ageDays := 0.0
	if !ev.CreatedAt.IsZero() {
		ageDays = math.Max(0, now.Sub(ev.CreatedAt).Hours()/24)
	}

	confidence := 1.0
	if ev.Confidence != nil && !math.IsNaN(*ev.Confidence) {
		confidence = math.Max(0, math.Min(1, *ev.Confidence))
	}

	return eventFactors{
		ageDays:      ageDays,
		decay:        math.Exp(-math.Ln2 * ageDays / e.cfg.HalfLifeDays),
		confidence:   confidence,
		sourceFactor: policy.SourceFactor(ev.SourceType, pol),
	}
}

func (e *Engine) trustWeight(ev *ledger.Event) float64 {
	if w, ok := e.cfg.TrustWeights[ev.EventType]; ok {
		return w
	}
	return e.cfg.TrustKindFallback[ev.Kind]
}

func (e *Engine) behaviorWeight(ev *ledger.Event) float64 {
	if w, ok := e.cfg.BehaviorWeights[ev.EventType]; ok {
		return w
	}
	return e.cfg.BehaviorKindFallback[ev.Kind]
}

func (e *Engine) sourceQuality(sourceType string) float64 {
	if q, ok := e.cfg.SourceQuality[sourceType]; ok {
		return q
	}
	return e.cfg.UnknownSourceQuality
}

// history returns the most recent HistorySize events, newest first.
// The input slice is never mutated.
func (e *Engine) history(events []*ledger.Event) []HistoryEvent {
	sorted := make([]*ledger.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > e.cfg.HistorySize {
		sorted = sorted[:e.cfg.HistorySize]
	}
	history := make([]HistoryEvent, 0, len(sorted))
	for _, ev := range sorted {
		history = append(history, HistoryEvent{
			ID:         ev.ID,
			Kind:       ev.Kind,
			EventType:  ev.EventType,
			Source:     ev.Source,
			SourceType: ev.SourceType,
			CreatedAt:  ev.CreatedAt,
		})
	}
	return history
}

func signalQuality(weightSum, qualitySum float64, included, verified int) SignalQuality {
	sq := SignalQuality{SampleSize: included}
	if included > 0 && weightSum > 0 {
		sq.Score = int(math.Round(100 * qualitySum / weightSum))
		sq.VerifiedPercent = int(math.Round(100 * float64(verified) / float64(included)))
	}
	sq.Level = signalLevel(sq.Score)
	return sq
}

// behaviorInfluence is the one-directional, advisory behavior→trust signal.
func behaviorInfluence(behaviorScore, abandoned30d int) int {
	influence := 0
	switch {
	case behaviorScore <= 35:
		influence = -6
	case behaviorScore <= 50:
		influence = -3
	case behaviorScore >= 85:
		influence = 2
	}
	if abandoned30d >= 2 {
		influence -= 4
	}
	return influence
}

func clampScore(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
