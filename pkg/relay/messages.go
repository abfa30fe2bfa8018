package relay

import "encoding/json"

// Message tags exchanged on the bridge channel. Both sides ignore unknown
// tags so new ones can be added without breaking old peers.
const (
	TypeRegistered = "registered"
	TypeRequest    = "request"
	TypeResponse   = "response"
	TypeRotateKey  = "rotate-key"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Message is the single flat envelope for every frame on the channel.
// Fields are populated according to Type; the rest stay empty.
type Message struct {
	Type           string          `json:"type"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	NewFingerprint string          `json:"newFingerprint,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ErrorResult encodes a bridge-side failure as a structured response
// payload so the relay's pending request resolves instead of timing out.
func ErrorResult(msg string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
