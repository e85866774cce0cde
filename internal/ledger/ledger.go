// Package ledger provides the append-only event ledger that trust scores
// are computed from.
//
// Every reported fact about an agent lands here as an immutable Event
// scoped to a tenant. Events are never updated or deleted once appended;
// the scoring engine reads a snapshot of the stream and ages events out
// via decay instead.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mbd888/trustline/internal/pagination"
)

// Errors
var (
	ErrEventNotFound  = errors.New("ledger: event not found")
	ErrDuplicateEvent = errors.New("ledger: duplicate external event id")
)

// Kind classifies an event's basic polarity.
type Kind string

const (
	KindPositive Kind = "positive"
	KindNeutral  Kind = "neutral"
	KindNegative Kind = "negative"
)

// ValidKind reports whether k is one of the three supported kinds.
func ValidKind(k Kind) bool {
	switch k {
	case KindPositive, KindNeutral, KindNegative:
		return true
	}
	return false
}

// Source types describe how an event reached the platform. Unknown values
// are accepted and fall through to default factors during scoring.
const (
	SourceVerifiedIntegration = "verified_integration"
	SourceSelfReported        = "self_reported"
	SourceUnverified          = "unverified"
	SourceManual              = "manual"
)

// MaxDetailsLen caps the free-text details field.
const MaxDetailsLen = 2000

// maxFutureSkew is how far in the future a client-supplied timestamp may be.
const maxFutureSkew = 5 * time.Minute

// Event is a single immutable fact about an agent.
type Event struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	AgentID         string    `json:"agentId"`
	Kind            Kind      `json:"kind"`
	EventType       string    `json:"eventType"`
	Details         string    `json:"details,omitempty"`
	Source          string    `json:"source,omitempty"`
	SourceType      string    `json:"sourceType,omitempty"`
	Confidence      *float64  `json:"confidence,omitempty"`
	ExternalEventID string    `json:"externalEventId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Input is the caller-supplied shape for reporting an event.
// Timestamps arrive as RFC3339 strings; a missing createdAt means "now".
type Input struct {
	AgentID         string   `json:"agentId" binding:"required"`
	Kind            string   `json:"kind" binding:"required"`
	EventType       string   `json:"eventType"`
	Details         string   `json:"details"`
	Source          string   `json:"source"`
	SourceType      string   `json:"sourceType"`
	Confidence      *float64 `json:"confidence"`
	ExternalEventID string   `json:"externalEventId"`
	CreatedAt       string   `json:"createdAt"`
}

// NormalizeAgentID trims and lower-cases an agent identifier.
func NormalizeAgentID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// NormalizeKey canonicalizes eventType/sourceType keys: trimmed, lower-cased,
// internal whitespace collapsed to underscores.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.Join(strings.Fields(key), "_")
}

// defaultConfidence assigns ingestion-time confidence by verification status.
// Callers that know better supply an explicit value instead.
func defaultConfidence(sourceType string) float64 {
	switch sourceType {
	case SourceVerifiedIntegration:
		return 1.0
	case SourceManual:
		return 0.9
	case SourceSelfReported:
		return 0.6
	case SourceUnverified:
		return 0.4
	default:
		return 0.8
	}
}

// Event validates and normalizes the input into a ledgered Event.
// This is the only place hard validation happens: once an Event exists,
// every downstream computation is total over it.
func (in *Input) Event(tenantID string, now time.Time) (*Event, error) {
	agentID := NormalizeAgentID(in.AgentID)
	if agentID == "" {
		return nil, fmt.Errorf("agentId is required")
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(in.Kind)))
	if !ValidKind(kind) {
		return nil, fmt.Errorf("kind must be one of positive, neutral, negative")
	}

	details := in.Details
	if len(details) > MaxDetailsLen {
		cut := MaxDetailsLen
		for cut > 0 && !utf8.RuneStart(details[cut]) {
			cut--
		}
		details = details[:cut]
	}

	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, fmt.Errorf("confidence must be between 0 and 1")
	}

	createdAt := now
	if in.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339, in.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("createdAt must be RFC3339: %v", err)
		}
		if t.After(now.Add(maxFutureSkew)) {
			return nil, fmt.Errorf("createdAt must not be in the future")
		}
		createdAt = t
	}

	sourceType := NormalizeKey(in.SourceType)

	confidence := in.Confidence
	if confidence == nil {
		c := defaultConfidence(sourceType)
		confidence = &c
	}

	return &Event{
		TenantID:        tenantID,
		AgentID:         agentID,
		Kind:            kind,
		EventType:       NormalizeKey(in.EventType),
		Details:         details,
		Source:          strings.TrimSpace(in.Source),
		SourceType:      sourceType,
		Confidence:      confidence,
		ExternalEventID: strings.TrimSpace(in.ExternalEventID),
		CreatedAt:       createdAt,
	}, nil
}

// Store persists events. Implementations must treat the ledger as
// append-only: no update or delete operations exist.
type Store interface {
	Append(ctx context.Context, ev *Event) error
	ListByAgent(ctx context.Context, tenantID, agentID string, limit int) ([]*Event, error)
	// ListByAgentPage is ListByAgent restricted to events strictly older
	// than the cursor position. A nil cursor starts from the newest event.
	ListByAgentPage(ctx context.Context, tenantID, agentID string, before *pagination.Cursor, limit int) ([]*Event, error)
	GetByExternalID(ctx context.Context, tenantID, externalEventID string) (*Event, error)
	ListAgentIDs(ctx context.Context, tenantID string) ([]string, error)
	ListTenantIDs(ctx context.Context) ([]string, error)
}
