package circuitbreaker

import (
	"testing"
	"time"
)

const endpoint = "https://hooks.example.com/trust"

func tripCircuit(b *Breaker, key string, failures int) {
	for i := 0; i < failures; i++ {
		b.RecordFailure(key)
	}
}

func TestUnknownKeyIsClosed(t *testing.T) {
	b := New(3, time.Minute)
	if !b.Allow(endpoint) {
		t.Fatal("a fresh key should be allowed")
	}
	if got := b.State(endpoint); got != StateClosed {
		t.Fatalf("State = %v, want closed", got)
	}
}

func TestOpensAtTripThreshold(t *testing.T) {
	b := New(3, time.Minute)

	tripCircuit(b, endpoint, 2)
	if !b.Allow(endpoint) {
		t.Fatal("two failures out of three should not open the circuit")
	}

	b.RecordFailure(endpoint)
	if b.Allow(endpoint) {
		t.Fatal("third failure should open the circuit")
	}
	if got := b.State(endpoint); got != StateOpen {
		t.Fatalf("State = %v, want open", got)
	}
}

func TestSuccessClearsFailureStreak(t *testing.T) {
	b := New(3, time.Minute)

	tripCircuit(b, endpoint, 2)
	b.RecordSuccess(endpoint)
	b.RecordFailure(endpoint)

	if !b.Allow(endpoint) {
		t.Fatal("streak was broken by a success, circuit should stay closed")
	}
}

func TestCooldownAdmitsOneProbe(t *testing.T) {
	b := New(2, 40*time.Millisecond)
	tripCircuit(b, endpoint, 2)

	if b.Allow(endpoint) {
		t.Fatal("circuit should be open during cooldown")
	}

	time.Sleep(50 * time.Millisecond)

	if !b.Allow(endpoint) {
		t.Fatal("cooldown elapsed, one probe should be admitted")
	}
	if got := b.State(endpoint); got != StateHalfOpen {
		t.Fatalf("State = %v, want half_open", got)
	}
	if b.Allow(endpoint) {
		t.Fatal("only one probe at a time while half-open")
	}
}

func TestProbeOutcomeSettlesCircuit(t *testing.T) {
	newHalfOpen := func(t *testing.T) *Breaker {
		t.Helper()
		b := New(2, 40*time.Millisecond)
		tripCircuit(b, endpoint, 2)
		time.Sleep(50 * time.Millisecond)
		if !b.Allow(endpoint) {
			t.Fatal("probe should be admitted")
		}
		return b
	}

	t.Run("success closes", func(t *testing.T) {
		b := newHalfOpen(t)
		b.RecordSuccess(endpoint)
		if got := b.State(endpoint); got != StateClosed {
			t.Fatalf("State = %v, want closed", got)
		}
		if !b.Allow(endpoint) {
			t.Fatal("recovered endpoint should accept deliveries")
		}
	})

	t.Run("failure reopens", func(t *testing.T) {
		b := newHalfOpen(t)
		b.RecordFailure(endpoint)
		if got := b.State(endpoint); got != StateOpen {
			t.Fatalf("State = %v, want open", got)
		}
		if b.Allow(endpoint) {
			t.Fatal("failed probe should start a new cooldown")
		}
	})
}

func TestKeysAreIndependent(t *testing.T) {
	b := New(2, time.Minute)
	other := "https://hooks.example.com/other"

	tripCircuit(b, endpoint, 2)

	if b.Allow(endpoint) {
		t.Fatal("tripped endpoint should be rejected")
	}
	if !b.Allow(other) {
		t.Fatal("an unrelated endpoint should be unaffected")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
