// Package streaming defines the wire format between rcdash and a remote
// session recorder.
package streaming

import (
	"encoding/json"
	"time"

	"github.com/rcdash/telemetry/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeSnapshot     = "snapshot"
	TypeSignal       = "signal"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload opens a session on the recorder.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// EndSessionPayload closes the session opened by the last start_session.
type EndSessionPayload struct {
	SessionID       string    `json:"sessionId"`
	EndedAt         time.Time `json:"endedAt"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// SignalPayload is a raw device message with its receive time.
type SignalPayload struct {
	Time  time.Time `json:"time"`
	Gas   *float64  `json:"gas"`
	Brake *float64  `json:"brake"`
	Gear  *string   `json:"gear"`
	Motor *int      `json:"motor"`
}

// NewSignalPayload copies s into its wire form.
func NewSignalPayload(s core.RawSignal) SignalPayload {
	return SignalPayload{
		Time:  s.ReceivedAt,
		Gas:   s.Gas,
		Brake: s.Brake,
		Gear:  s.Gear,
		Motor: s.Motor,
	}
}
