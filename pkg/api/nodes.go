package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"mcp-relay/pkg/relay"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	_, online := s.hub.Actor(nodeID).Connected()
	writeJSON(w, http.StatusOK, StatusResponse{NodeID: nodeID, Online: online})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	actor := s.hub.Actor(nodeID)
	fp, ok := s.authorize(w, r, actor)
	if !ok {
		return
	}
	s.forward(w, actor, fp, "tools/list", nil, 0)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeId"]
	actor := s.hub.Actor(nodeID)
	fp, ok := s.authorize(w, r, actor)
	if !ok {
		return
	}
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "method is required")
		return
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	s.forward(w, actor, fp, req.Method, req.Params, timeout)
}

// authorize runs the ingress credential gate. Connectivity is checked
// first so an unauthenticated probe cannot learn whether a node identity
// exists; a wrong key on a live bridge is reported distinctly from a dead
// bridge. The connection's own registered fingerprint is the source of
// truth, never a separately stored one.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, actor *relay.Actor) (string, bool) {
	fp, connected := actor.Connected()
	if !connected {
		writeError(w, http.StatusNotFound, "bridge not connected")
		return "", false
	}
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		writeError(w, http.StatusForbidden, "missing bearer credential")
		return "", false
	}
	secret := strings.TrimPrefix(h, "Bearer ")
	if subtle.ConstantTimeCompare([]byte(s.hasher.Sum(secret)), []byte(fp)) != 1 {
		writeError(w, http.StatusForbidden, "invalid credential")
		return "", false
	}
	return fp, true
}

func (s *Server) forward(w http.ResponseWriter, actor *relay.Actor, fp, method string, params json.RawMessage, timeout time.Duration) {
	result, err := actor.Forward(fp, method, params, timeout)
	if err != nil {
		switch {
		case errors.Is(err, relay.ErrNotConnected):
			writeError(w, http.StatusNotFound, "bridge not connected")
		case errors.Is(err, relay.ErrTimeout):
			writeError(w, http.StatusBadGateway, "bridge did not answer in time")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, CallResponse{Result: result})
}
