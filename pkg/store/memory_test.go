package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-relay/pkg/model"
)

func TestUpsertPreservesFirstSeen(t *testing.T) {
	d := NewMemoryDirectory()
	first := time.Now().Add(-time.Hour)
	_, err := d.UpsertNode(model.Node{ID: "n1", FirstSeen: first, LastConnect: first})
	require.NoError(t, err)

	_, err = d.UpsertNode(model.Node{ID: "n1", FirstSeen: time.Now(), LastConnect: time.Now()})
	require.NoError(t, err)

	n, ok, err := d.GetNode("n1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, n.FirstSeen.Equal(first))
	assert.True(t, n.LastConnect.After(first))
}

func TestListNodesSorted(t *testing.T) {
	d := NewMemoryDirectory()
	for _, id := range []string{"b", "a", "c"} {
		_, err := d.UpsertNode(model.Node{ID: id})
		require.NoError(t, err)
	}
	nodes, err := d.ListNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "a", nodes[0].ID)
	assert.Equal(t, "c", nodes[2].ID)
}

func TestAuditTailAndLimit(t *testing.T) {
	d := NewMemoryDirectory()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.AppendAudit(model.AuditEntry{NodeID: "n1", Action: fmt.Sprintf("a%d", i)}))
	}
	entries, err := d.ListAudit(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a3", entries[0].Action)
	assert.Equal(t, "a4", entries[1].Action)

	all, err := d.ListAudit(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
