package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotConnected means no live bridge connection exists for the
	// requested fingerprint.
	ErrNotConnected = errors.New("bridge not connected")
	// ErrTimeout means the bridge did not answer within the deadline.
	ErrTimeout = errors.New("forward timed out")
)

// DefaultForwardTimeout bounds a forwarded call when the caller does not
// pick its own deadline.
const DefaultForwardTimeout = 60 * time.Second

// Actor coordinates all tunnel state for one node identity: the
// fingerprint-keyed connection table and the pending-request table. Every
// mutation goes through its mutex, which makes replace-on-connect and the
// rotate-key move atomic. Distinct node identities never share an Actor.
type Actor struct {
	nodeID string

	mu      sync.Mutex
	conns   map[string]Conn
	owners  map[Conn]string
	pending map[string]chan json.RawMessage

	// audit, when set, records connection lifecycle events. Best effort.
	audit func(action, detail string)
}

func NewActor(nodeID string) *Actor {
	a := &Actor{
		nodeID:  nodeID,
		conns:   make(map[string]Conn),
		owners:  make(map[Conn]string),
		pending: make(map[string]chan json.RawMessage),
	}
	return a
}

func (a *Actor) log() *log.Entry {
	return log.WithField("nodeId", a.nodeID)
}

func (a *Actor) recordAudit(action, detail string) {
	if a.audit != nil {
		a.audit(action, detail)
	}
}

// Attach installs a new connection for fingerprint. Every connection
// already registered on the actor is closed with a "replaced" reason
// first, whatever fingerprint it sat under, so one live connection serves
// the node identity at a time. A registered ack is sent on the new
// connection.
func (a *Actor) Attach(fingerprint string, c Conn) {
	a.mu.Lock()
	for fp, old := range a.conns {
		if old == c {
			continue
		}
		delete(a.conns, fp)
		delete(a.owners, old)
		_ = old.CloseWithReason(websocket.ClosePolicyViolation, "replaced")
		a.recordAudit("replace", "previous connection superseded")
	}
	a.conns[fingerprint] = c
	a.owners[c] = fingerprint
	a.mu.Unlock()
	a.log().Info("bridge connected")
	a.recordAudit("connect", "bridge registered")
	_ = c.WriteMessage(Message{Type: TypeRegistered, Message: "bridge registered"})
}

// Detach removes a connection's registry entries after transport close or
// error. Pending requests already in flight are left to their own
// deadlines rather than failed eagerly.
func (a *Actor) Detach(c Conn) {
	a.mu.Lock()
	fp, ok := a.owners[c]
	if ok {
		delete(a.owners, c)
		if a.conns[fp] == c {
			delete(a.conns, fp)
		}
	}
	a.mu.Unlock()
	if ok {
		a.log().Info("bridge disconnected")
		a.recordAudit("disconnect", "connection closed")
	}
}

// Online reports whether a live connection exists for fingerprint.
func (a *Actor) Online(fingerprint string) bool {
	a.mu.Lock()
	_, ok := a.conns[fingerprint]
	a.mu.Unlock()
	return ok
}

// Connected reports whether any bridge is attached and, if so, under
// which fingerprint. The registered fingerprint is the source of truth
// for the ingress credential check.
func (a *Actor) Connected() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for fp := range a.conns {
		return fp, true
	}
	return "", false
}

// Forward sends a tagged request on the fingerprint's connection and
// blocks until a matching response arrives or the deadline elapses.
// timeout <= 0 selects DefaultForwardTimeout.
func (a *Actor) Forward(fingerprint, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}

	a.mu.Lock()
	c, ok := a.conns[fingerprint]
	if !ok {
		a.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan json.RawMessage, 1)
	a.pending[id] = ch
	a.mu.Unlock()

	err := c.WriteMessage(Message{
		Type:          TypeRequest,
		CorrelationID: id,
		Method:        method,
		Params:        params,
	})
	if err != nil {
		a.dropPending(id)
		return nil, ErrNotConnected
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-ch:
		return result, nil
	case <-timer.C:
		a.dropPending(id)
		a.log().WithField("correlationId", id).Warn("forwarded call timed out")
		return nil, ErrTimeout
	}
}

// dropPending removes a pending entry if it is still unresolved.
func (a *Actor) dropPending(id string) {
	a.mu.Lock()
	delete(a.pending, id)
	a.mu.Unlock()
}

// HandleMessage dispatches one inbound frame from a bridge connection.
// Unknown tags are ignored for forward compatibility.
func (a *Actor) HandleMessage(c Conn, m Message) {
	switch m.Type {
	case TypeResponse:
		a.resolve(m.CorrelationID, m.Result)
	case TypeRotateKey:
		a.rotate(c, m.NewFingerprint)
	case TypePing:
		_ = c.WriteMessage(Message{Type: TypePong})
	default:
		a.log().WithField("type", m.Type).Debug("ignoring message")
	}
}

// resolve fulfils the pending request for id. A response whose id is
// unknown (late, duplicate, never issued) is silently dropped; removal
// under the lock guarantees exactly one outcome per correlation id.
func (a *Actor) resolve(id string, result json.RawMessage) {
	a.mu.Lock()
	ch, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
	}
	a.mu.Unlock()
	if ok {
		ch <- result
	}
}

// rotate atomically moves c from its current fingerprint slot to
// newFingerprint and acknowledges with a rotate-key echo.
func (a *Actor) rotate(c Conn, newFingerprint string) {
	if newFingerprint == "" {
		return
	}
	a.mu.Lock()
	old, registered := a.owners[c]
	if !registered {
		a.mu.Unlock()
		return
	}
	if a.conns[old] == c {
		delete(a.conns, old)
	}
	a.conns[newFingerprint] = c
	a.owners[c] = newFingerprint
	a.mu.Unlock()
	a.log().Info("credential fingerprint rotated")
	a.recordAudit("rotate-key", "fingerprint rotated")
	_ = c.WriteMessage(Message{Type: TypeRotateKey, NewFingerprint: newFingerprint})
}
