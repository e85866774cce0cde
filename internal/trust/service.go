package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/trustline/internal/idgen"
	"github.com/mbd888/trustline/internal/ledger"
	"github.com/mbd888/trustline/internal/logging"
	"github.com/mbd888/trustline/internal/metrics"
	"github.com/mbd888/trustline/internal/policy"
	"github.com/mbd888/trustline/internal/webhooks"
)

// maxScoreEvents bounds how much history a single scoring call loads.
const maxScoreEvents = 5000

// ErrInvalidInput marks ingestion failures caused by the caller's payload.
var ErrInvalidInput = errors.New("invalid input")

// Service orchestrates ingestion and scoring across the ledger, the
// tenant policy store and the webhook emitter.
type Service struct {
	engine   *Engine
	events   ledger.Store
	policies policy.Store
	emitter  *webhooks.Emitter
}

// NewService creates the scoring service. The emitter may be nil when
// webhook delivery is disabled.
func NewService(engine *Engine, events ledger.Store, policies policy.Store, emitter *webhooks.Emitter) *Service {
	return &Service{
		engine:   engine,
		events:   events,
		policies: policies,
		emitter:  emitter,
	}
}

// Events returns the underlying event store.
func (s *Service) Events() ledger.Store { return s.events }

// Policies returns the underlying policy store.
func (s *Service) Policies() policy.Store { return s.policies }

// ScoreOptions controls a service-level scoring call.
type ScoreOptions struct {
	IncludeTrace bool
	TraceLimit   int
}

// Score computes an agent's current trust score under the tenant's policy.
func (s *Service) Score(ctx context.Context, tenantID, agentID string, opts ScoreOptions) (*ScoreResult, error) {
	pol, err := policy.GetOrDefault(ctx, s.policies, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}

	events, err := s.events.ListByAgent(ctx, tenantID, ledger.NormalizeAgentID(agentID), maxScoreEvents)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	start := time.Now()
	result := s.engine.ScoreAgent(agentID, events, Options{
		Policy:       pol,
		IncludeTrace: opts.IncludeTrace,
		TraceLimit:   opts.TraceLimit,
	})
	metrics.ScoresComputedTotal.Inc()
	metrics.ScoreComputeDuration.Observe(time.Since(start).Seconds())
	for reason, n := range result.Breakdown.Policy.Excluded {
		metrics.PolicyExclusionsTotal.WithLabelValues(reason).Add(float64(n))
	}

	return result, nil
}

// IngestResult reports what an ingestion call did.
type IngestResult struct {
	Event         *ledger.Event `json:"event"`
	Duplicate     bool          `json:"duplicate"`
	PreviousScore int           `json:"previousScore"`
	Score         int           `json:"score"`
	Level         string        `json:"level"`
}

// Ingest validates and appends one event, then rescores the agent and
// emits a score.changed webhook when the score moved. Replays of a known
// externalEventId return the stored event without appending.
func (s *Service) Ingest(ctx context.Context, tenantID string, in *ledger.Input) (*IngestResult, error) {
	now := time.Now()
	ev, err := in.Event(tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	ev.ID = idgen.WithPrefix("evt_")

	// Idempotent replay detection before scoring the "before" state.
	if ev.ExternalEventID != "" {
		existing, err := s.events.GetByExternalID(ctx, tenantID, ev.ExternalEventID)
		if err != nil && !errors.Is(err, ledger.ErrEventNotFound) {
			return nil, fmt.Errorf("failed to check external event id: %w", err)
		}
		if existing != nil {
			metrics.EventsDuplicateTotal.Inc()
			res, err := s.Score(ctx, tenantID, ev.AgentID, ScoreOptions{})
			if err != nil {
				return nil, err
			}
			return &IngestResult{
				Event:         existing,
				Duplicate:     true,
				PreviousScore: res.Score,
				Score:         res.Score,
				Level:         res.Level,
			}, nil
		}
	}

	before, err := s.Score(ctx, tenantID, ev.AgentID, ScoreOptions{})
	if err != nil {
		return nil, err
	}

	if err := s.events.Append(ctx, ev); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEvent) {
			metrics.EventsDuplicateTotal.Inc()
			existing, getErr := s.events.GetByExternalID(ctx, tenantID, ev.ExternalEventID)
			if getErr == nil {
				return &IngestResult{
					Event:         existing,
					Duplicate:     true,
					PreviousScore: before.Score,
					Score:         before.Score,
					Level:         before.Level,
				}, nil
			}
		}
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	metrics.EventsIngestedTotal.WithLabelValues(string(ev.Kind)).Inc()

	after, err := s.Score(ctx, tenantID, ev.AgentID, ScoreOptions{})
	if err != nil {
		return nil, err
	}

	if s.emitter != nil && after.Score != before.Score {
		s.emitter.EmitScoreChanged(tenantID, ev.AgentID, before.Score, after.Score, after.Level)
	}

	logging.L(ctx).Info("event ingested",
		"agent", ev.AgentID,
		"kind", ev.Kind,
		"eventType", ev.EventType,
		"score", after.Score,
		"previousScore", before.Score,
	)

	return &IngestResult{
		Event:         ev,
		PreviousScore: before.Score,
		Score:         after.Score,
		Level:         after.Level,
	}, nil
}
