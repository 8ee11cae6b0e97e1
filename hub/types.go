// Package hub fans out store change events to subscribed WebSocket clients.
// A session never blocks a producer: a full send buffer destroys the
// session rather than stalling the dispatcher (§4.5).
package hub

import "encoding/json"

const (
	// DefaultSendBuffer is the default per-client outbound queue depth (§4.5).
	DefaultSendBuffer = 256

	pongWaitSeconds  = 60 // no pong within this window destroys the session
	writeWaitSeconds = 10 // per-write deadline
	pingPeriodSeconds = 30 // heartbeat cadence
)

// ServerMessage is the outbound envelope for every frame a session writes (§6).
type ServerMessage struct {
	Type    string      `json:"type"`
	Symbol  string      `json:"symbol,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ClientMessage is the inbound envelope a session parses from the client (§6).
type ClientMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

func encode(msg ServerMessage) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		b, _ = json.Marshal(ServerMessage{Type: "error", Message: "internal encode error"})
	}
	return b
}

func decodeClientMessage(raw []byte, msg *ClientMessage) error {
	return json.Unmarshal(raw, msg)
}
