//go:build consul

package store

import (
	"mcp-relay/pkg/consul"
)

// NewConsulDirectory creates a Consul-backed directory (requires build tag consul).
func NewConsulDirectory(addr string) (Directory, error) {
	return consul.NewDirectory(addr)
}
