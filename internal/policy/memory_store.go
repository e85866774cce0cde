package policy

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory policy store for tests and demo mode.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy // by tenant ID
}

// NewMemoryStore creates a new in-memory policy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*Policy)}
}

func (m *MemoryStore) Get(_ context.Context, tenantID string) (*Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[tenantID]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) Set(_ context.Context, p *Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.policies[p.TenantID] = p.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.policies[tenantID]; !ok {
		return ErrPolicyNotFound
	}
	delete(m.policies, tenantID)
	return nil
}
