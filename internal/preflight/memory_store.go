package preflight

import (
	"context"
	"sync"
)

// maxDecisionsPerTenant caps the in-memory audit trail.
const maxDecisionsPerTenant = 10000

// MemoryStore is an in-memory decision audit trail for tests and demo mode.
type MemoryStore struct {
	mu        sync.RWMutex
	decisions map[string][]*Decision // tenantID -> newest last
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[string][]*Decision)}
}

func (m *MemoryStore) Record(_ context.Context, d *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	list := append(m.decisions[d.TenantID], &cp)
	if len(list) > maxDecisionsPerTenant {
		list = list[len(list)-maxDecisionsPerTenant:]
	}
	m.decisions[d.TenantID] = list
	return nil
}

func (m *MemoryStore) ListByAgent(_ context.Context, tenantID, agentID string, limit int) ([]*Decision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Decision
	list := m.decisions[tenantID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].AgentID != agentID {
			continue
		}
		cp := *list[i]
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
