package store

import (
	"sort"
	"sync"

	"mcp-relay/pkg/model"
)

// MemoryDirectory is the default in-process Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	nodes map[string]model.Node
	audit []model.AuditEntry
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{nodes: make(map[string]model.Node)}
}

func (m *MemoryDirectory) UpsertNode(n model.Node) (model.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.nodes[n.ID]; ok && !existing.FirstSeen.IsZero() {
		n.FirstSeen = existing.FirstSeen
	}
	m.nodes[n.ID] = n
	return n, nil
}

func (m *MemoryDirectory) GetNode(id string) (model.Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	return n, ok, nil
}

func (m *MemoryDirectory) ListNodes() ([]model.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryDirectory) AppendAudit(e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	if len(m.audit) > 1000 {
		m.audit = m.audit[len(m.audit)-1000:]
	}
	return nil
}

func (m *MemoryDirectory) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.audit) {
		limit = len(m.audit)
	}
	out := make([]model.AuditEntry, 0, limit)
	for i := len(m.audit) - limit; i < len(m.audit); i++ {
		out = append(out, m.audit[i])
	}
	return out, nil
}
