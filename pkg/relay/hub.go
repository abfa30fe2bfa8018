package relay

import (
	"sync"
	"time"

	"mcp-relay/pkg/model"
	"mcp-relay/pkg/store"
)

// Hub hands out the per-node-identity Actor, creating it lazily on first
// access. It is the only owner of the nodeID -> Actor table.
type Hub struct {
	mu     sync.Mutex
	actors map[string]*Actor
	dir    store.Directory
}

func NewHub(dir store.Directory) *Hub {
	return &Hub{
		actors: make(map[string]*Actor),
		dir:    dir,
	}
}

// Actor returns the actor owning nodeID's tunnel state.
func (h *Hub) Actor(nodeID string) *Actor {
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok := h.actors[nodeID]
	if !ok {
		a = NewActor(nodeID)
		if h.dir != nil {
			a.audit = func(action, detail string) {
				_ = h.dir.AppendAudit(model.AuditEntry{
					NodeID:    nodeID,
					Action:    action,
					Detail:    detail,
					Timestamp: time.Now(),
				})
				if action == "connect" {
					h.touchNode(nodeID)
				}
			}
		}
		h.actors[nodeID] = a
	}
	return a
}

func (h *Hub) touchNode(nodeID string) {
	n, ok, err := h.dir.GetNode(nodeID)
	if err != nil {
		return
	}
	now := time.Now()
	if !ok {
		n = model.Node{ID: nodeID, FirstSeen: now}
	}
	n.LastConnect = now
	_, _ = h.dir.UpsertNode(n)
}
