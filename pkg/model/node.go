package model

import "time"

// Node is the relay-side directory record for one bridge identity. It is
// observability state only; the live connection table in the relay actor
// stays the sole source of truth for online/authorization decisions.
type Node struct {
	ID          string    `json:"id"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastConnect time.Time `json:"lastConnect"`
}
