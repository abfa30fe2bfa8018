package store

import "mcp-relay/pkg/model"

// Directory records node identities and connection lifecycle events on the
// relay side. It is consulted for operator visibility only, never for
// authorization; the actor's connection table stays authoritative.
type Directory interface {
	UpsertNode(model.Node) (model.Node, error)
	GetNode(id string) (model.Node, bool, error)
	ListNodes() ([]model.Node, error)
	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)
}
