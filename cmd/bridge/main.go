package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"mcp-relay/pkg/bridge"
	"mcp-relay/pkg/mcp"
	"mcp-relay/pkg/version"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	defaultID := os.Getenv("NODE_ID")
	defaultRelay := os.Getenv("RELAY_ADDR")
	defaultMCP := os.Getenv("MCP_ADDR")
	if defaultMCP == "" {
		defaultMCP = "http://127.0.0.1:3001/mcp"
	}

	nodeID := flag.String("id", defaultID, "node identity (env NODE_ID)")
	relayAddr := flag.String("relay", defaultRelay, "relay base URL (env RELAY_ADDR)")
	mcpAddr := flag.String("mcp", defaultMCP, "downstream MCP endpoint (env MCP_ADDR)")
	statePath := flag.String("state", "/var/lib/mcp-relay/state.db", "path to local state db")
	secret := flag.String("secret", "", "bearer secret; its fingerprint is computed via the relay and persisted")
	rotateSecret := flag.String("rotate-secret", "", "rotate to this new secret once connected")
	showVersion := flag.Bool("v", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Infof("bridge version=%s", version.Build)
		return
	}

	var stateDB *bridge.StateDB
	st := bridge.PersistedState{}
	if sdb, err := bridge.OpenStateDB(*statePath); err != nil {
		log.WithError(err).Warn("state db unavailable; running without persistence")
	} else {
		stateDB = sdb
		defer stateDB.Close()
		if loaded, err := sdb.Load(); err == nil {
			st = loaded
		}
	}

	// Flags override persisted state.
	if *nodeID != "" {
		st.NodeID = *nodeID
	}
	if *relayAddr != "" {
		st.RelayURL = *relayAddr
	}
	if *mcpAddr != "" {
		st.MCPURL = *mcpAddr
	}
	if st.NodeID == "" {
		log.Fatal("node identity is required (flag --id or env NODE_ID)")
	}
	if st.RelayURL == "" {
		log.Fatal("relay base URL is required (flag --relay or env RELAY_ADDR)")
	}
	if *secret != "" {
		fp, err := fingerprint(st.RelayURL, *secret)
		if err != nil {
			log.WithError(err).Fatal("failed to compute fingerprint")
		}
		st.KeyHash = fp
	}
	if st.KeyHash == "" {
		log.Fatal("no credential fingerprint; provide --secret once to derive and persist it")
	}
	if stateDB != nil {
		if err := stateDB.Save(st); err != nil {
			log.WithError(err).Warn("failed to persist state")
		}
	}

	adapter := mcp.NewClient(st.MCPURL, 30*time.Second)
	// A dead MCP server must not keep the tunnel down; the adapter
	// re-establishes the session on the first forwarded call.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := adapter.Initialize(ctx); err != nil {
		log.WithError(err).Warn("mcp session not established yet")
	}
	cancel()

	client, err := bridge.New(st.RelayURL, st.NodeID, st.KeyHash, adapter)
	if err != nil {
		log.WithError(err).Fatal("bridge setup failed")
	}
	if stateDB != nil {
		client.OnRotated = func(newFingerprint string) {
			if err := stateDB.SaveKeyHash(newFingerprint); err != nil {
				log.WithError(err).Error("failed to persist rotated fingerprint")
			}
		}
	}

	log.WithField("nodeId", st.NodeID).Infof("bridge starting, version=%s", version.Build)
	go client.Run()

	if *rotateSecret != "" {
		go rotateWhenConnected(client, st.RelayURL, *rotateSecret)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	client.Stop()
}

// rotateWhenConnected waits for the tunnel, derives the new fingerprint
// via the relay's public hash endpoint and rotates the live connection.
func rotateWhenConnected(client *bridge.Client, relayURL, newSecret string) {
	deadline := time.Now().Add(30 * time.Second)
	for client.State() != bridge.StateConnected {
		if time.Now().After(deadline) {
			log.Error("rotation aborted: tunnel never connected")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fp, err := fingerprint(relayURL, newSecret)
	if err != nil {
		log.WithError(err).Error("rotation aborted: fingerprint lookup failed")
		return
	}
	if err := client.RotateKey(fp); err != nil {
		log.WithError(err).Error("rotation failed")
		return
	}
	log.Info("secret rotated; update your callers")
}

// fingerprint asks the relay to hash a secret with its private salt.
func fingerprint(relayURL, secret string) (string, error) {
	body, _ := json.Marshal(map[string]string{"value": secret})
	resp, err := http.Post(relayURL+"/api/v1/hash", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hash request returned %d", resp.StatusCode)
	}
	var out struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode hash response: %w", err)
	}
	return out.Hash, nil
}
