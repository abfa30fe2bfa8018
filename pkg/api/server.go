package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"mcp-relay/pkg/hash"
	"mcp-relay/pkg/relay"
	"mcp-relay/pkg/store"
)

// Server wires the relay's public HTTP surface: the hash and health
// endpoints, the bridge upgrade endpoint, the node-scoped tunnel
// operations and the optional admin API.
type Server struct {
	hub      *relay.Hub
	hasher   *hash.Service
	dir      store.Directory
	db       *gorm.DB // nil disables the admin API
	upgrader websocket.Upgrader
}

func NewServer(hub *relay.Hub, hasher *hash.Service, dir store.Directory, db *gorm.DB) *Server {
	return &Server{
		hub:    hub,
		hasher: hasher,
		dir:    dir,
		db:     db,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/hash", s.handleHash).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/ws/bridge", s.handleBridgeWS).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/nodes/{nodeId}/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/nodes/{nodeId}/tools", s.handleTools).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/nodes/{nodeId}/call", s.handleCall).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/register", s.handleAdminRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/login", s.handleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/admin/nodes", s.adminOnly(s.handleAdminNodes)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/admin/audit", s.adminOnly(s.handleAdminAudit)).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleHash computes the salted fingerprint of a value. Public: bridges
// need it to derive the fingerprint of a new secret before rotating.
func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value interface{} `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	value, ok := body.Value.(string)
	if !ok {
		writeError(w, http.StatusBadRequest, "value must be a string")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"hash": s.hasher.Sum(value)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
