package bridge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	sdb, err := OpenStateDB(path)
	require.NoError(t, err)
	defer sdb.Close()

	st := PersistedState{
		NodeID:   "N1",
		KeyHash:  "H1",
		RelayURL: "https://relay.example",
		MCPURL:   "http://127.0.0.1:3001/mcp",
	}
	require.NoError(t, sdb.Save(st))

	loaded, err := sdb.Load()
	require.NoError(t, err)
	assert.Equal(t, st, loaded)
}

func TestLoadEmptyState(t *testing.T) {
	sdb, err := OpenStateDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer sdb.Close()

	st, err := sdb.Load()
	require.NoError(t, err)
	assert.Equal(t, PersistedState{}, st)
}

func TestRotationPersistsOnlyKeyHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	sdb, err := OpenStateDB(path)
	require.NoError(t, err)
	defer sdb.Close()

	require.NoError(t, sdb.Save(PersistedState{NodeID: "N1", KeyHash: "H1", RelayURL: "r", MCPURL: "m"}))
	require.NoError(t, sdb.SaveKeyHash("H2"))

	st, err := sdb.Load()
	require.NoError(t, err)
	assert.Equal(t, "H2", st.KeyHash)
	assert.Equal(t, "N1", st.NodeID)
	assert.Equal(t, "r", st.RelayURL)
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	sdb, err := OpenStateDB(path)
	require.NoError(t, err)
	require.NoError(t, sdb.Save(PersistedState{NodeID: "N1", KeyHash: "H1"}))
	require.NoError(t, sdb.Close())

	again, err := OpenStateDB(path)
	require.NoError(t, err)
	defer again.Close()
	st, err := again.Load()
	require.NoError(t, err)
	assert.Equal(t, "N1", st.NodeID)
	assert.Equal(t, "H1", st.KeyHash)
}
