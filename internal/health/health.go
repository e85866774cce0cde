// Package health reports the liveness of the service's dependencies.
//
// Subsystems register a probe under a name; the readiness endpoint asks
// the registry for a combined verdict. Probes run with a short deadline so
// a wedged dependency cannot stall the health endpoint itself.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// probeTimeout bounds a single probe invocation.
const probeTimeout = 2 * time.Second

// Status is the outcome of one probe.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem.
type Checker func(ctx context.Context) Status

// Registry maps subsystem names to probes. Registering a name twice
// replaces the earlier probe.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Checker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Checker)}
}

// Register installs a probe under name.
func (r *Registry) Register(name string, probe Checker) {
	r.mu.Lock()
	r.probes[name] = probe
	r.mu.Unlock()
}

// CheckAll runs every probe and reports whether all passed. Statuses come
// back sorted by name so the endpoint output is stable.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, 0, len(r.probes))
	probes := make(map[string]Checker, len(r.probes))
	for name, probe := range r.probes {
		names = append(names, name)
		probes[name] = probe
	}
	r.mu.RUnlock()
	sort.Strings(names)

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		st := probes[name](probeCtx)
		cancel()
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
