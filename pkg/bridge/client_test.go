package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-relay/pkg/relay"
)

type scriptedAdapter struct {
	err error
}

func (a scriptedAdapter) Call(_ context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if a.err != nil {
		return nil, a.err
	}
	if method == "tools/call" {
		return params, nil
	}
	return json.RawMessage(`{"tools":[]}`), nil
}

// fakeRelay accepts one bridge connection, records its params, sends the
// registered ack and exposes the raw socket for scripting frames.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	params   chan map[string]string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{
		conns:  make(chan *websocket.Conn, 4),
		params: make(chan map[string]string, 4),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.params <- map[string]string{
			"nodeId":  r.URL.Query().Get("nodeId"),
			"keyHash": r.URL.Query().Get("keyHash"),
		}
		c, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = c.WriteJSON(relay.Message{Type: relay.TypeRegistered, Message: "bridge registered"})
		f.conns <- c
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeRelay) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("bridge never connected")
		return nil
	}
}

func readFrame(t *testing.T, c *websocket.Conn) relay.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m relay.Message
	require.NoError(t, c.ReadJSON(&m))
	return m
}

func startClient(t *testing.T, f *fakeRelay, adapter Adapter) *Client {
	t.Helper()
	client, err := New(f.srv.URL, "N1", "H1", adapter)
	require.NoError(t, err)
	go client.Run()
	t.Cleanup(client.Stop)
	return client
}

func TestConnectPresentsIdentityAndFingerprint(t *testing.T) {
	f := newFakeRelay(t)
	startClient(t, f, scriptedAdapter{})
	f.accept(t)

	p := <-f.params
	assert.Equal(t, "N1", p["nodeId"])
	assert.Equal(t, "H1", p["keyHash"])
}

func TestForwardedRequestAnswered(t *testing.T) {
	f := newFakeRelay(t)
	startClient(t, f, scriptedAdapter{})
	conn := f.accept(t)

	require.NoError(t, conn.WriteJSON(relay.Message{
		Type:          relay.TypeRequest,
		CorrelationID: "c1",
		Method:        "tools/call",
		Params:        json.RawMessage(`{"x":1}`),
	}))

	m := readFrame(t, conn)
	assert.Equal(t, relay.TypeResponse, m.Type)
	assert.Equal(t, "c1", m.CorrelationID)
	assert.JSONEq(t, `{"x":1}`, string(m.Result))
}

func TestAdapterFailureReportedInPayload(t *testing.T) {
	f := newFakeRelay(t)
	startClient(t, f, scriptedAdapter{err: fmt.Errorf("local service down")})
	conn := f.accept(t)

	require.NoError(t, conn.WriteJSON(relay.Message{
		Type:          relay.TypeRequest,
		CorrelationID: "c2",
		Method:        "tools/list",
	}))

	// The response still arrives; the failure is inside the result.
	m := readFrame(t, conn)
	assert.Equal(t, relay.TypeResponse, m.Type)
	assert.Equal(t, "c2", m.CorrelationID)
	assert.Contains(t, string(m.Result), "local service down")
}

func TestRotateKeyRequiresOpenConnection(t *testing.T) {
	client, err := New("http://127.0.0.1:1", "N1", "H1", scriptedAdapter{})
	require.NoError(t, err)
	assert.ErrorIs(t, client.RotateKey("H2"), ErrNotOpen)
}

func TestRotateKeyWaitsForAck(t *testing.T) {
	f := newFakeRelay(t)
	client := startClient(t, f, scriptedAdapter{})
	conn := f.accept(t)
	waitState(t, client, StateConnected)

	rotated := make(chan string, 1)
	client.OnRotated = func(fp string) { rotated <- fp }

	done := make(chan error, 1)
	go func() { done <- client.RotateKey("H2") }()

	m := readFrame(t, conn)
	require.Equal(t, relay.TypeRotateKey, m.Type)
	require.Equal(t, "H2", m.NewFingerprint)
	require.NoError(t, conn.WriteJSON(relay.Message{Type: relay.TypeRotateKey, NewFingerprint: "H2"}))

	require.NoError(t, <-done)
	select {
	case fp := <-rotated:
		assert.Equal(t, "H2", fp)
	case <-time.After(time.Second):
		t.Fatal("OnRotated never called")
	}
}

func TestStopClosesAndDisablesReconnect(t *testing.T) {
	f := newFakeRelay(t)
	client := startClient(t, f, scriptedAdapter{})
	conn := f.accept(t)
	waitState(t, client, StateConnected)

	client.Stop()
	assert.Equal(t, StateStopped, client.State())

	// The relay side observes a normal closure.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
		websocket.IsUnexpectedCloseError(err))

	// No second connection attempt follows.
	select {
	case <-f.conns:
		t.Fatal("client reconnected after Stop")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestServerDropTriggersDisconnectedState(t *testing.T) {
	f := newFakeRelay(t)
	client := startClient(t, f, scriptedAdapter{})
	conn := f.accept(t)
	waitState(t, client, StateConnected)

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := client.State(); s == StateDisconnected || s == StateConnecting {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("client stuck in state %s after drop", client.State())
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client never reached state %s (now %s)", want, c.State())
}
