package api

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"mcp-relay/pkg/relay"
)

// handleBridgeWS upgrades a bridge's persistent connection and attaches it
// to the node's actor under the presented fingerprint. The read loop feeds
// inbound frames to the actor until the transport closes.
func (s *Server) handleBridgeWS(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Upgrade") == "" {
		writeError(w, http.StatusUpgradeRequired, "websocket upgrade required")
		return
	}
	nodeID := r.URL.Query().Get("nodeId")
	keyHash := r.URL.Query().Get("keyHash")
	if nodeID == "" || keyHash == "" {
		writeError(w, http.StatusBadRequest, "nodeId and keyHash are required")
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("nodeId", nodeID).Warn("ws upgrade failed")
		return
	}

	actor := s.hub.Actor(nodeID)
	conn := relay.NewConn(ws)
	actor.Attach(keyHash, conn)

	go func() {
		defer func() {
			actor.Detach(conn)
			_ = ws.Close()
		}()
		for {
			var m relay.Message
			if err := ws.ReadJSON(&m); err != nil {
				return
			}
			actor.HandleMessage(conn, m)
		}
	}()
}
