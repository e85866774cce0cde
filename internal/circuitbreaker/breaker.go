// Package circuitbreaker stops deliveries to endpoints that keep failing.
//
// Each key (a webhook URL in practice) gets its own circuit. Consecutive
// failures past a threshold open the circuit and deliveries to that key are
// skipped for a cooldown period. After the cooldown a single probe delivery
// is let through: success closes the circuit, failure re-opens it. Other
// keys are unaffected throughout.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State identifies the phase a circuit is in.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "trustline",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit state transitions by key, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitionsTotal)
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker tracks one circuit per key.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	trip     int
	cooldown time.Duration
}

// New returns a breaker that opens a key's circuit after trip consecutive
// failures and waits cooldown before probing it again. Non-positive
// arguments fall back to 5 failures and 30 seconds.
func New(trip int, cooldown time.Duration) *Breaker {
	if trip <= 0 {
		trip = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		trip:     trip,
		cooldown: cooldown,
	}
}

// Allow reports whether a delivery to key may proceed right now. On an
// open circuit whose cooldown has elapsed, Allow admits exactly one probe
// and moves the circuit to half-open; further calls are rejected until the
// probe's outcome is recorded.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return true
	}

	switch c.state {
	case StateOpen:
		if time.Since(c.openedAt) < b.cooldown {
			return false
		}
		b.setState(key, c, StateHalfOpen)
		return true
	case StateHalfOpen:
		// A probe is already in flight.
		return false
	default:
		return true
	}
}

// RecordSuccess clears the failure streak for key. A successful half-open
// probe closes the circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return
	}
	if c.state == StateHalfOpen {
		b.setState(key, c, StateClosed)
	}
	c.failures = 0
}

// RecordFailure counts a failed delivery against key, opening the circuit
// once the streak reaches the trip threshold. A failed half-open probe
// re-opens immediately.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}

	c.failures++
	switch {
	case c.state == StateHalfOpen:
		b.setState(key, c, StateOpen)
	case c.state == StateClosed && c.failures >= b.trip:
		b.setState(key, c, StateOpen)
	}
}

// State returns the circuit state for key. Keys never seen are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil {
		return c.state
	}
	return StateClosed
}

// setState is called with b.mu held.
func (b *Breaker) setState(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if to == StateOpen {
		c.openedAt = time.Now()
	}
	transitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
}
