package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"mcp-relay/pkg/version"
)

const sessionHeader = "Mcp-Session-Id"

// DownstreamError carries the status and body of a failed downstream call.
type DownstreamError struct {
	Status int
	Body   string
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("mcp server returned %d: %s", e.Status, e.Body)
}

// Client talks to an MCP server over streamable HTTP. It performs the
// initialize handshake lazily, attaches the session id to every call and
// adopts a replacement session id from any response.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	session string
	nextID  int64
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call sends a JSON-RPC request, establishing a session first if none
// exists. A failed downstream call is returned as an error, never as a
// transport-level failure.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, method, params, true)
}

// Initialize eagerly establishes the downstream session. Callers may skip
// this; Call performs the handshake on demand.
func (c *Client) Initialize(ctx context.Context) error {
	return c.ensureSession(ctx)
}

func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	have := c.session != ""
	c.mu.Unlock()
	if have {
		return nil
	}
	params, _ := json.Marshal(map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "mcp-relay-bridge",
			"version": version.Build,
		},
	})
	if _, err := c.roundTrip(ctx, "initialize", params, false); err != nil {
		return fmt.Errorf("mcp handshake: %w", err)
	}
	// Per protocol the client signals readiness after initialize. Best
	// effort: some servers work without it.
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		log.WithError(err).Debug("initialized notification failed")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params json.RawMessage, withSession bool) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	session := c.session
	c.mu.Unlock()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	resp, err := c.post(ctx, body, session, withSession)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Token rotation is transparent: any response may carry a new id.
	if s := resp.Header.Get(sessionHeader); s != "" {
		c.mu.Lock()
		c.session = s
		c.mu.Unlock()
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownstreamError{Status: resp.StatusCode, Body: string(data)}
	}
	var rpc rpcResponse
	if err := json.Unmarshal(data, &rpc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("mcp error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	return rpc.Result, nil
}

func (c *Client) notify(ctx context.Context, method string) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	body, _ := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method})
	resp, err := c.post(ctx, body, session, true)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) post(ctx context.Context, body []byte, session string, withSession bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if withSession && session != "" {
		req.Header.Set(sessionHeader, session)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mcp server unreachable: %w", err)
	}
	return resp, nil
}
