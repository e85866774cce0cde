// Package webhooks notifies external services when an agent's trust score
// moves.
//
// Tenants register a URL with an optional HMAC secret and a score-change
// threshold; after every ingestion the emitter compares the previous and
// new trust scores and fires a signed score.changed delivery when the move
// meets the threshold.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mbd888/trustline/internal/circuitbreaker"
	"github.com/mbd888/trustline/internal/retry"
)

// Errors
var ErrSubscriptionNotFound = errors.New("webhooks: subscription not found")

// EventScoreChanged is the only event type this service emits.
const EventScoreChanged = "score.changed"

// Event is the delivery payload.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription is a tenant's registered webhook endpoint.
type Subscription struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	// AgentID filters deliveries to one agent; empty matches all.
	AgentID string `json:"agentId,omitempty"`
	URL     string `json:"url"`
	Secret  string `json:"-"` // Used for HMAC signing
	// Threshold is the minimum absolute score change that triggers a
	// delivery. Zero fires on any change.
	Threshold   int        `json:"threshold"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher sends webhook deliveries. Transient failures are retried with
// backoff, and endpoints that keep failing trip a per-URL circuit breaker so
// dead subscribers stop consuming delivery goroutines.
type Dispatcher struct {
	store       Store
	client      *http.Client
	breaker     *circuitbreaker.Breaker
	maxAttempts int
	baseDelay   time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRetryPolicy overrides delivery attempt count and backoff base delay.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxAttempts = maxAttempts
		d.baseDelay = baseDelay
	}
}

// WithBreaker overrides the per-endpoint circuit breaker settings.
func WithBreaker(threshold int, openDuration time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.breaker = circuitbreaker.New(threshold, openDuration)
	}
}

// NewDispatcher creates a new webhook dispatcher.
func NewDispatcher(store Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends an event to every matching active subscription for the
// tenant. Deliveries run async so ingestion is never blocked on a slow
// subscriber.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, agentID string, delta int, event *Event) error {
	subs, err := d.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		if sub.AgentID != "" && sub.AgentID != agentID {
			continue
		}
		if abs(delta) < sub.Threshold {
			continue
		}
		go d.send(context.WithoutCancel(ctx), sub, event)
	}

	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if !d.breaker.Allow(sub.URL) {
		d.updateError(ctx, sub, "delivery skipped: endpoint circuit open")
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	err = retry.Do(ctx, d.maxAttempts, d.baseDelay, func() error {
		return d.deliver(ctx, sub, event, payload)
	})
	if err != nil {
		d.breaker.RecordFailure(sub.URL)
		d.updateError(ctx, sub, err.Error())
		return
	}

	d.breaker.RecordSuccess(sub.URL)
	d.updateSuccess(ctx, sub)
}

// deliver performs one HTTP delivery attempt. 4xx responses are permanent:
// the endpoint rejected the payload and a retry cannot change that.
func (d *Dispatcher) deliver(ctx context.Context, sub *Subscription, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trustline-Event", event.Type)
	req.Header.Set("X-Trustline-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

	if sub.Secret != "" {
		req.Header.Set("X-Trustline-Signature", Sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	default:
		return fmt.Errorf("status %d", resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 signature receivers verify against.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	_ = d.store.Update(ctx, sub)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
