package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-relay/pkg/store"
)

func TestHubReturnsSameActor(t *testing.T) {
	h := NewHub(store.NewMemoryDirectory())
	a := h.Actor("n1")
	assert.Same(t, a, h.Actor("n1"))
	assert.NotSame(t, a, h.Actor("n2"))
}

func TestHubRecordsConnectInDirectory(t *testing.T) {
	dir := store.NewMemoryDirectory()
	h := NewHub(dir)
	a := h.Actor("n1")
	a.Attach("fp1", &fakeConn{})

	n, ok, err := dir.GetNode("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, n.LastConnect.IsZero())
	assert.False(t, n.FirstSeen.IsZero())

	entries, err := dir.ListAudit(0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "connect", entries[len(entries)-1].Action)
}
