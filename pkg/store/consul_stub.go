//go:build !consul

package store

import (
	log "github.com/sirupsen/logrus"
)

// NewConsulDirectory returns a memory directory when the consul build tag
// is not enabled.
func NewConsulDirectory(addr string) (Directory, error) {
	log.WithField("addr", addr).Warn("consul directory requested but consul build tag not enabled; using memory directory")
	return NewMemoryDirectory(), nil
}
