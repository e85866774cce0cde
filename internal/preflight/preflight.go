// Package preflight implements the allow/review/block decision taken before
// a risky action (typically a payment) is executed on an agent's behalf.
//
// A decision combines the agent's trust score, behavior score and signal
// quality with an additive risk heuristic derived from the action itself.
// The computation is pure; every decision is recorded to an audit store by
// the HTTP layer.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mbd888/trustline/internal/policy"
	"github.com/mbd888/trustline/internal/trust"
)

// Errors
var ErrDecisionNotFound = errors.New("preflight: decision not found")

// Outcome is the verdict on a proposed action.
type Outcome string

const (
	OutcomeAllow  Outcome = "allow"
	OutcomeReview Outcome = "review"
	OutcomeBlock  Outcome = "block"
)

// Score thresholds for the decision cascade.
const (
	// HardMinimumScore blocks on raw trust regardless of adjustments.
	HardMinimumScore = 35
	BlockThreshold   = 35
	ReviewThreshold  = 55

	// MaxRiskPenalty caps the additive risk heuristic.
	MaxRiskPenalty = 60
)

// ActionContext describes the action being attempted. All fields optional;
// a zero value is a riskless action.
type ActionContext struct {
	ActionType            string  `json:"actionType,omitempty"`
	AmountUSD             float64 `json:"amountUsd,omitempty"`
	NewPayee              bool    `json:"newPayee,omitempty"`
	FirstTimeCounterparty bool    `json:"firstTimeCounterparty,omitempty"`
	HighPrivilegeAction   bool    `json:"highPrivilegeAction,omitempty"`
	ExposesAPIKeys        bool    `json:"exposesApiKeys,omitempty"`
}

// TrustSnapshot captures the scoring inputs the decision was based on.
type TrustSnapshot struct {
	Score             int `json:"score"`
	BehaviorScore     int `json:"behaviorScore"`
	SignalQuality     int `json:"signalQuality"`
	SevereNegative30d int `json:"severeNegative30d"`
}

// PolicySnapshot captures the arithmetic behind the verdict.
type PolicySnapshot struct {
	AdjustedScore    int     `json:"adjustedScore"`
	RiskPenalty      int     `json:"riskPenalty"`
	BehaviorPenalty  int     `json:"behaviorPenalty"`
	BehaviorCredit   int     `json:"behaviorCredit"`
	BlockThreshold   int     `json:"blockThreshold"`
	ReviewThreshold  int     `json:"reviewThreshold"`
	MinSignalQuality float64 `json:"minSignalQuality,omitempty"`
}

// Decision is the result of a preflight evaluation. Its fields are shaped
// for the audit log: agent, outcome, score and reason are all present.
type Decision struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenantId"`
	AgentID     string         `json:"agentId"`
	ActionType  string         `json:"actionType,omitempty"`
	Outcome     Outcome        `json:"decision"`
	Reason      string         `json:"reason"`
	Trust       TrustSnapshot  `json:"trust"`
	Policy      PolicySnapshot `json:"policy"`
	EvaluatedAt time.Time      `json:"evaluatedAt"`
}

// RiskPenalty computes the additive risk heuristic for an action, capped
// at MaxRiskPenalty. Amount thresholds stack: a $25,000 action accrues
// 10+15+20 before the counterparty and privilege factors.
func RiskPenalty(action ActionContext) int {
	penalty := 0
	if action.AmountUSD >= 1000 {
		penalty += 10
	}
	if action.AmountUSD >= 5000 {
		penalty += 15
	}
	if action.AmountUSD >= 20000 {
		penalty += 20
	}
	if action.NewPayee {
		penalty += 15
	}
	if action.FirstTimeCounterparty {
		penalty += 10
	}
	if action.HighPrivilegeAction {
		penalty += 20
	}
	if action.ExposesAPIKeys {
		penalty += 25
	}
	if penalty > MaxRiskPenalty {
		penalty = MaxRiskPenalty
	}
	return penalty
}

// Decide evaluates an action against an agent's score. Pure: same inputs,
// same decision. The cascade is ordered; the first matching rule wins, with
// the signal-quality gate applied as a post-check that can only downgrade
// allow to review, never escalate a block.
func Decide(tenantID, agentID string, action ActionContext, res *trust.ScoreResult, pol *policy.Policy, now time.Time) *Decision {
	riskPenalty := RiskPenalty(action)

	behaviorPenalty := 0
	switch {
	case res.Behavior.Score < 40:
		behaviorPenalty = 12
	case res.Behavior.Score < 55:
		behaviorPenalty = 6
	}
	behaviorCredit := 0
	if res.Behavior.Score >= 85 {
		behaviorCredit = 3
	}

	if res.AgentID != "" {
		agentID = res.AgentID
	}

	adjusted := res.Score - riskPenalty - behaviorPenalty + behaviorCredit
	adjusted = int(math.Max(0, math.Min(100, float64(adjusted))))

	d := &Decision{
		TenantID:   tenantID,
		AgentID:    agentID,
		ActionType: action.ActionType,
		Trust: TrustSnapshot{
			Score:             res.Score,
			BehaviorScore:     res.Behavior.Score,
			SignalQuality:     res.SignalQuality.Score,
			SevereNegative30d: res.Breakdown.SevereNegative30d,
		},
		Policy: PolicySnapshot{
			AdjustedScore:   adjusted,
			RiskPenalty:     riskPenalty,
			BehaviorPenalty: behaviorPenalty,
			BehaviorCredit:  behaviorCredit,
			BlockThreshold:  BlockThreshold,
			ReviewThreshold: ReviewThreshold,
		},
		EvaluatedAt: now,
	}
	if pol != nil {
		d.Policy.MinSignalQuality = pol.MinSignalQuality
	}

	switch {
	case res.Score < HardMinimumScore:
		d.Outcome = OutcomeBlock
		d.Reason = fmt.Sprintf("trust score %d below hard minimum %d", res.Score, HardMinimumScore)
	case res.Breakdown.SevereNegative30d >= 2 && riskPenalty >= 20:
		d.Outcome = OutcomeBlock
		d.Reason = fmt.Sprintf("%d severe incidents in 30 days with high-risk action context", res.Breakdown.SevereNegative30d)
	case adjusted < BlockThreshold:
		d.Outcome = OutcomeBlock
		d.Reason = fmt.Sprintf("risk-adjusted score %d below block threshold %d", adjusted, BlockThreshold)
	case adjusted < ReviewThreshold:
		d.Outcome = OutcomeReview
		d.Reason = fmt.Sprintf("risk-adjusted score %d below review threshold %d", adjusted, ReviewThreshold)
	default:
		d.Outcome = OutcomeAllow
		d.Reason = fmt.Sprintf("risk-adjusted score %d above review threshold %d", adjusted, ReviewThreshold)
	}

	// Signal-quality gate: forces review when evidence is too thin, but
	// never relaxes a block.
	if pol != nil && pol.MinSignalQuality > 0 &&
		float64(res.SignalQuality.Score) < pol.MinSignalQuality &&
		d.Outcome != OutcomeBlock {
		d.Outcome = OutcomeReview
		d.Reason = fmt.Sprintf("signal quality %d below required %v", res.SignalQuality.Score, pol.MinSignalQuality)
	}

	return d
}

// Store persists decisions for the audit trail.
type Store interface {
	Record(ctx context.Context, d *Decision) error
	ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Decision, error)
}
