package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/trustline/internal/pagination"
)

// MemoryStore is an in-memory event ledger for tests and demo mode.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*Event // tenantID -> append-ordered events
}

// NewMemoryStore creates a new in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]*Event)}
}

func (m *MemoryStore) Append(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.ExternalEventID != "" {
		for _, existing := range m.events[ev.TenantID] {
			if existing.ExternalEventID == ev.ExternalEventID {
				return ErrDuplicateEvent
			}
		}
	}

	cp := *ev
	if ev.Confidence != nil {
		c := *ev.Confidence
		cp.Confidence = &c
	}
	m.events[ev.TenantID] = append(m.events[ev.TenantID], &cp)
	return nil
}

func (m *MemoryStore) ListByAgent(_ context.Context, tenantID, agentID string, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Event
	for _, ev := range m.events[tenantID] {
		if ev.AgentID != agentID {
			continue
		}
		cp := *ev
		if ev.Confidence != nil {
			c := *ev.Confidence
			cp.Confidence = &c
		}
		result = append(result, &cp)
	}

	// Newest first, stable within equal timestamps by append order.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListByAgentPage(_ context.Context, tenantID, agentID string, before *pagination.Cursor, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Event
	for _, ev := range m.events[tenantID] {
		if ev.AgentID != agentID {
			continue
		}
		if before != nil && !olderThanCursor(ev, before) {
			continue
		}
		cp := *ev
		if ev.Confidence != nil {
			c := *ev.Confidence
			cp.Confidence = &c
		}
		result = append(result, &cp)
	}

	// Newest first with ID as tiebreak so cursor pages never skip or
	// repeat events that share a timestamp.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func olderThanCursor(ev *Event, c *pagination.Cursor) bool {
	if ev.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return ev.CreatedAt.Equal(c.CreatedAt) && ev.ID < c.ID
}

func (m *MemoryStore) GetByExternalID(_ context.Context, tenantID, externalEventID string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if externalEventID == "" {
		return nil, ErrEventNotFound
	}
	for _, ev := range m.events[tenantID] {
		if ev.ExternalEventID == externalEventID {
			cp := *ev
			if ev.Confidence != nil {
				c := *ev.Confidence
				cp.Confidence = &c
			}
			return &cp, nil
		}
	}
	return nil, ErrEventNotFound
}

func (m *MemoryStore) ListAgentIDs(_ context.Context, tenantID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, ev := range m.events[tenantID] {
		if !seen[ev.AgentID] {
			seen[ev.AgentID] = true
			ids = append(ids, ev.AgentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) ListTenantIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for tenantID := range m.events {
		ids = append(ids, tenantID)
	}
	sort.Strings(ids)
	return ids, nil
}
