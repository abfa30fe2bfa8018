package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// PersistedState is the bridge's durable configuration: loaded once at
// startup, mutated only by the rotation flow and flag overrides.
type PersistedState struct {
	NodeID   string
	KeyHash  string
	RelayURL string
	MCPURL   string
}

// StateDB stores PersistedState in a local sqlite file.
type StateDB struct {
	db *sql.DB
}

func OpenStateDB(path string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("state dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping state db: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS bridge_state(key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &StateDB{db: db}, nil
}

func (s *StateDB) Close() error {
	return s.db.Close()
}

func (s *StateDB) Load() (PersistedState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM bridge_state`)
	if err != nil {
		return PersistedState{}, err
	}
	defer rows.Close()
	var st PersistedState
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		switch k {
		case "node_id":
			st.NodeID = v
		case "key_hash":
			st.KeyHash = v
		case "relay_url":
			st.RelayURL = v
		case "mcp_url":
			st.MCPURL = v
		}
	}
	return st, rows.Err()
}

func (s *StateDB) Save(st PersistedState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for k, v := range map[string]string{
		"node_id":   st.NodeID,
		"key_hash":  st.KeyHash,
		"relay_url": st.RelayURL,
		"mcp_url":   st.MCPURL,
	} {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO bridge_state(key, value) VALUES(?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return nil
}

// SaveKeyHash persists only the rotated fingerprint.
func (s *StateDB) SaveKeyHash(keyHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `INSERT INTO bridge_state(key, value) VALUES('key_hash',?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, keyHash)
	return err
}
