package hash

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumDeterministic(t *testing.T) {
	s := NewService("salt-a")
	first := s.Sum("secret")
	assert.Equal(t, first, s.Sum("secret"))
	assert.Equal(t, first, NewService("salt-a").Sum("secret"))
}

func TestSumFormat(t *testing.T) {
	s := NewService("salt-a")
	digest := s.Sum("secret")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), digest)
}

func TestDifferentSaltsDiffer(t *testing.T) {
	a := NewService("salt-a").Sum("secret")
	b := NewService("salt-b").Sum("secret")
	assert.NotEqual(t, a, b)
}

func TestDifferentValuesDiffer(t *testing.T) {
	s := NewService("salt-a")
	assert.NotEqual(t, s.Sum("one"), s.Sum("two"))
}
