package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// MemoryStore tests
// ---------------------------------------------------------------------------

func TestMemoryStore_CRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	sub := &Subscription{
		ID:        "sub_test1",
		TenantID:  "tenant-1",
		URL:       "https://example.com/hook",
		Secret:    "secret123",
		Threshold: 5,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "sub_test1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.URL != "https://example.com/hook" {
		t.Errorf("Expected URL, got %s", got.URL)
	}

	sub.Active = false
	if err := store.Update(ctx, sub); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, _ = store.Get(ctx, "sub_test1")
	if got.Active {
		t.Error("Expected inactive after update")
	}

	if err := store.Delete(ctx, "sub_test1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "sub_test1"); err != ErrSubscriptionNotFound {
		t.Errorf("Expected ErrSubscriptionNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_ListByTenant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-a", URL: "https://a"})
	store.Create(ctx, &Subscription{ID: "sub2", TenantID: "tenant-b", URL: "https://b"})
	store.Create(ctx, &Subscription{ID: "sub3", TenantID: "tenant-a", URL: "https://c"})

	subs, _ := store.ListByTenant(ctx, "tenant-a")
	if len(subs) != 2 {
		t.Errorf("Expected 2 subs for tenant-a, got %d", len(subs))
	}
}

// ---------------------------------------------------------------------------
// Signature tests
// ---------------------------------------------------------------------------

func TestSign(t *testing.T) {
	payload := []byte(`{"type":"score.changed","data":{}}`)
	secret := "test_secret_key"

	sig := Sign(payload, secret)

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if sig != expected {
		t.Errorf("Signature mismatch: got %s, want %s", sig, expected)
	}
}

func TestSign_DifferentSecrets(t *testing.T) {
	payload := []byte(`{"test": true}`)
	if Sign(payload, "secret1") == Sign(payload, "secret2") {
		t.Error("Different secrets should produce different signatures")
	}
}

// ---------------------------------------------------------------------------
// Dispatch tests
// ---------------------------------------------------------------------------

func scoreEvent(delta int) *Event {
	return &Event{
		ID:        "evt_test",
		Type:      EventScoreChanged,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"delta": delta},
	}
}

func TestDispatch_SendsToSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store)
	if err := d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// Wait for async delivery
	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 webhook delivery, got %d", received.Load())
	}
}

func TestDispatch_SkipsInactiveSubscribers(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: false})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("Expected 0 deliveries for inactive sub, got %d", received.Load())
	}
}

func TestDispatch_FiltersByAgentAndThreshold(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	// Matches: any agent, threshold met.
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true, Threshold: 5})
	// Skipped: pinned to a different agent.
	store.Create(ctx, &Subscription{ID: "sub2", TenantID: "tenant-1", AgentID: "agent-2", URL: server.URL, Active: true})
	// Skipped: threshold above the delta.
	store.Create(ctx, &Subscription{ID: "sub3", TenantID: "tenant-1", URL: server.URL, Active: true, Threshold: 20})
	// Skipped: other tenant.
	store.Create(ctx, &Subscription{ID: "sub4", TenantID: "tenant-2", URL: server.URL, Active: true})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", -8, scoreEvent(-8))

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Expected 1 delivery, got %d", received.Load())
	}
}

func TestDispatch_ThresholdUsesAbsoluteDelta(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true, Threshold: 10})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", -15, scoreEvent(-15))

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("Negative delta should satisfy threshold by magnitude, got %d deliveries", received.Load())
	}
}

func TestDispatch_IncludesSignature(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotSig string
	var gotBody []byte
	secret := "test_webhook_secret" //nolint:gosec // test credential

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get("X-Trustline-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true, Secret: secret})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if gotSig == "" {
		t.Fatal("Expected signature header")
	}
	if gotSig != Sign(gotBody, secret) {
		t.Errorf("Signature does not verify against the delivered body")
	}
}

func TestDispatch_IncludesEventHeaders(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotEventType string
	var gotTimestamp string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotEventType = r.Header.Get("X-Trustline-Event")
		gotTimestamp = r.Header.Get("X-Trustline-Timestamp")
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if gotEventType != "score.changed" {
		t.Errorf("Expected event type score.changed, got %s", gotEventType)
	}
	if gotTimestamp == "" {
		t.Error("Expected timestamp header")
	}
}

func TestDispatch_PayloadFormat(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store)
	event := scoreEvent(12)
	event.Data["agentId"] = "agent-1"
	d.Dispatch(ctx, "tenant-1", "agent-1", 12, event)

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var parsed Event
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("Failed to parse webhook payload: %v", err)
	}
	if parsed.Type != EventScoreChanged {
		t.Errorf("Expected type score.changed, got %s", parsed.Type)
	}
	if parsed.Data["agentId"] != "agent-1" {
		t.Errorf("Expected agentId in payload, got %v", parsed.Data)
	}
}

func TestDispatch_ErrorUpdatesSubscription(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store, WithRetryPolicy(2, time.Millisecond))
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "sub1")
	if sub.LastError == "" {
		t.Error("Expected lastError to be set after 500 response")
	}
}

func TestDispatch_RetriesTransientFailures(t *testing.T) {
	store := NewMemoryStore()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store, WithRetryPolicy(3, time.Millisecond))
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	if hits.Load() != 2 {
		t.Errorf("Expected 2 delivery attempts, got %d", hits.Load())
	}
	sub, _ := store.Get(ctx, "sub1")
	if sub.LastSuccess == nil {
		t.Error("Expected lastSuccess after a successful retry")
	}
}

func TestDispatch_RejectedPayloadIsNotRetried(t *testing.T) {
	store := NewMemoryStore()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(400)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store, WithRetryPolicy(3, time.Millisecond))
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	if hits.Load() != 1 {
		t.Errorf("Expected 1 delivery attempt for a 400 response, got %d", hits.Load())
	}
	sub, _ := store.Get(ctx, "sub1")
	if sub.LastError == "" {
		t.Error("Expected lastError after 400 response")
	}
}

func TestDispatch_CircuitOpensForDeadEndpoint(t *testing.T) {
	store := NewMemoryStore()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(500)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store,
		WithRetryPolicy(1, time.Millisecond),
		WithBreaker(2, time.Minute),
	)

	// Two failed deliveries trip the breaker.
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))
	time.Sleep(100 * time.Millisecond)
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))
	time.Sleep(100 * time.Millisecond)

	before := hits.Load()
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))
	time.Sleep(100 * time.Millisecond)

	if hits.Load() != before {
		t.Errorf("Expected no requests while circuit open, got %d more", hits.Load()-before)
	}
	sub, _ := store.Get(ctx, "sub1")
	if !strings.Contains(sub.LastError, "circuit open") {
		t.Errorf("Expected circuit open error, got %q", sub.LastError)
	}
}

func TestDispatch_SuccessUpdatesSubscription(t *testing.T) {
	store := NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	d := NewDispatcher(store)
	d.Dispatch(ctx, "tenant-1", "agent-1", 8, scoreEvent(8))

	time.Sleep(200 * time.Millisecond)

	sub, _ := store.Get(ctx, "sub1")
	if sub.LastSuccess == nil {
		t.Error("Expected lastSuccess to be set after successful delivery")
	}
	if sub.LastError != "" {
		t.Errorf("Expected no error after success, got %s", sub.LastError)
	}
}

// ---------------------------------------------------------------------------
// Emitter tests
// ---------------------------------------------------------------------------

func TestEmitScoreChanged(t *testing.T) {
	store := NewMemoryStore()

	var mu sync.Mutex
	var gotBody []byte
	var received atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		received.Add(1)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	e := NewEmitter(NewDispatcher(store), slog.Default())
	e.EmitScoreChanged("tenant-1", "agent-1", 50, 58, "Medium")

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 1 {
		t.Fatalf("Expected 1 delivery, got %d", received.Load())
	}

	mu.Lock()
	defer mu.Unlock()

	var parsed Event
	if err := json.Unmarshal(gotBody, &parsed); err != nil {
		t.Fatalf("Failed to parse payload: %v", err)
	}
	if parsed.Type != EventScoreChanged {
		t.Errorf("Expected score.changed, got %s", parsed.Type)
	}
	if parsed.Data["delta"] != float64(8) {
		t.Errorf("Expected delta 8, got %v", parsed.Data["delta"])
	}
	if parsed.Data["previousScore"] != float64(50) || parsed.Data["score"] != float64(58) {
		t.Errorf("Score fields wrong: %v", parsed.Data)
	}
}

func TestEmitScoreChanged_NoOpWhenUnchanged(t *testing.T) {
	store := NewMemoryStore()

	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(200)
	}))
	defer server.Close()

	ctx := context.Background()
	store.Create(ctx, &Subscription{ID: "sub1", TenantID: "tenant-1", URL: server.URL, Active: true})

	e := NewEmitter(NewDispatcher(store), slog.Default())
	e.EmitScoreChanged("tenant-1", "agent-1", 58, 58, "Medium")

	time.Sleep(200 * time.Millisecond)

	if received.Load() != 0 {
		t.Errorf("Unchanged score must not emit, got %d deliveries", received.Load())
	}
}

func TestEmitScoreChanged_NilEmitterIsSafe(t *testing.T) {
	var e *Emitter
	// Must not panic.
	e.EmitScoreChanged("tenant-1", "agent-1", 50, 60, "Medium")
}
