package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"mcp-relay/pkg/relay"
)

// Adapter translates a generic (method, params) call into the downstream
// protocol. Failures come back as errors, which the client reports inside
// the response payload so the relay side always resolves.
type Adapter interface {
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)
}

// State of the connection loop.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateStopped      State = "stopped"
)

var (
	// ErrNotOpen means an operation needed a live relay connection.
	ErrNotOpen = errors.New("relay connection not open")
	// ErrStopped means the client was shut down by the operator.
	ErrStopped = errors.New("client stopped")
)

const (
	reconnectDelay  = 5 * time.Second
	pingInterval    = 30 * time.Second
	downstreamLimit = 30 * time.Second
	rotateAckWait   = 10 * time.Second
)

// Client keeps one persistent connection to the relay, dispatches
// forwarded requests to the adapter and runs the reconnect loop.
type Client struct {
	relayURL string
	nodeID   string
	adapter  Adapter

	// OnRotated is called after the relay acknowledges a fingerprint
	// rotation, so callers can persist the new hash.
	OnRotated func(newFingerprint string)

	mu        sync.Mutex
	keyHash   string
	state     State
	conn      *websocket.Conn
	writeMu   sync.Mutex
	stopCh    chan struct{}
	rotateAck chan string
}

func New(relayURL, nodeID, keyHash string, adapter Adapter) (*Client, error) {
	if relayURL == "" || nodeID == "" || keyHash == "" {
		return nil, errors.New("relay url, node id and key hash are required")
	}
	if _, err := url.Parse(relayURL); err != nil {
		return nil, err
	}
	return &Client{
		relayURL:  relayURL,
		nodeID:    nodeID,
		keyHash:   keyHash,
		adapter:   adapter,
		state:     StateDisconnected,
		stopCh:    make(chan struct{}),
		rotateAck: make(chan string, 1),
	}, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) log() *log.Entry {
	return log.WithField("nodeId", c.nodeID)
}

// endpoint builds the ws(s) upgrade URL carrying the connection params.
func (c *Client) endpoint() string {
	u, _ := url.Parse(c.relayURL)
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/ws/bridge"
	q := u.Query()
	q.Set("nodeId", c.nodeID)
	c.mu.Lock()
	q.Set("keyHash", c.keyHash)
	c.mu.Unlock()
	u.RawQuery = q.Encode()
	return u.String()
}

// Run drives the connect/reconnect loop until Stop is called. It blocks.
func (c *Client) Run() {
	for {
		if c.stopped() {
			return
		}
		c.setState(StateConnecting)
		conn, resp, err := websocket.DefaultDialer.Dial(c.endpoint(), nil)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.log().WithError(err).WithField("status", status).Warn("relay dial failed")
			c.setState(StateDisconnected)
			if !c.sleep(reconnectDelay) {
				return
			}
			continue
		}
		c.mu.Lock()
		if c.state == StateStopped {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		c.log().Info("connected to relay")

		done := make(chan struct{})
		go c.pingLoop(conn, done)
		c.readLoop(conn)
		close(done)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		stopped := c.state == StateStopped
		if !stopped {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		_ = conn.Close()
		if stopped {
			return
		}
		c.log().Info("relay connection lost, reconnecting")
		if !c.sleep(reconnectDelay) {
			return
		}
	}
}

// Stop terminates the loop and closes the active connection with a normal
// closure code. The client cannot be restarted afterwards.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	conn := c.conn
	c.conn = nil
	close(c.stopCh)
	c.mu.Unlock()
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	c.log().Info("bridge stopped")
}

func (c *Client) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d unless Stop interrupts it.
func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateStopped {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var m relay.Message
		if err := conn.ReadJSON(&m); err != nil {
			if !c.stopped() {
				c.log().WithError(err).Debug("read failed")
			}
			return
		}
		switch m.Type {
		case relay.TypeRegistered:
			c.log().Info("registered with relay")
		case relay.TypeRequest:
			go c.handleRequest(conn, m)
		case relay.TypeRotateKey:
			select {
			case c.rotateAck <- m.NewFingerprint:
			default:
			}
		case relay.TypePong:
		default:
			c.log().WithField("type", m.Type).Debug("ignoring message")
		}
	}
}

// handleRequest invokes the adapter and always answers with a response
// frame; adapter failures ride inside the result payload.
func (c *Client) handleRequest(conn *websocket.Conn, m relay.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), downstreamLimit)
	defer cancel()
	result, err := c.adapter.Call(ctx, m.Method, m.Params)
	if err != nil {
		c.log().WithError(err).WithField("method", m.Method).Warn("downstream call failed")
		result = relay.ErrorResult(err.Error())
	}
	c.write(conn, relay.Message{
		Type:          relay.TypeResponse,
		CorrelationID: m.CorrelationID,
		Result:        result,
	})
}

func (c *Client) write(conn *websocket.Conn, m relay.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(m); err != nil {
		c.log().WithError(err).Debug("write failed")
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-c.stopCh:
			return
		case <-t.C:
			c.write(conn, relay.Message{Type: relay.TypePing})
		}
	}
}

// RotateKey asks the relay to move this connection to newFingerprint and
// waits for the acknowledgement. Local state updates optimistically; the
// relay is authoritative once it acks.
func (c *Client) RotateKey(newFingerprint string) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateConnected && conn != nil
	c.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	// Drain a stale ack from an earlier attempt.
	select {
	case <-c.rotateAck:
	default:
	}

	c.write(conn, relay.Message{Type: relay.TypeRotateKey, NewFingerprint: newFingerprint})
	c.mu.Lock()
	c.keyHash = newFingerprint
	c.mu.Unlock()

	select {
	case acked := <-c.rotateAck:
		if acked != newFingerprint {
			return errors.New("rotation ack fingerprint mismatch")
		}
	case <-time.After(rotateAckWait):
		return errors.New("rotation not acknowledged")
	case <-c.stopCh:
		return ErrStopped
	}
	if c.OnRotated != nil {
		c.OnRotated(newFingerprint)
	}
	c.log().Info("credential fingerprint rotated")
	return nil
}
