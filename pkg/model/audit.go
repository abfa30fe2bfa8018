package model

import "time"

// AuditEntry captures a connection lifecycle event on the relay.
type AuditEntry struct {
	NodeID    string    `json:"nodeId"`
	Action    string    `json:"action"` // connect, replace, rotate-key, disconnect
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
