package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Service computes salted credential fingerprints. The salt lives only on
// the relay side; it is never transmitted or logged.
type Service struct {
	salt string
}

func NewService(salt string) *Service {
	return &Service{salt: salt}
}

// Sum returns the lowercase hex SHA-256 digest of value concatenated with
// the salt. Deterministic for a given salt.
func (s *Service) Sum(value string) string {
	h := sha256.Sum256([]byte(value + s.salt))
	return hex.EncodeToString(h[:])
}
