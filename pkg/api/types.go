package api

import "encoding/json"

// CallRequest asks the relay to forward one tool call to a bridge.
type CallRequest struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	TimeoutMs int             `json:"timeoutMs,omitempty"` // 0 selects the default deadline
}

// CallResponse carries the bridge's result. A downstream failure shows up
// as {"error": ...} inside Result, not as a transport error.
type CallResponse struct {
	Result json.RawMessage `json:"result"`
}

// StatusResponse reports bridge liveness for a node identity.
type StatusResponse struct {
	NodeID string `json:"nodeId"`
	Online bool   `json:"online"`
}
