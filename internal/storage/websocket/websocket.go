package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/storage"
	"github.com/rcdash/telemetry/pkg/core"
	"github.com/rcdash/telemetry/pkg/streaming"
)

// Backend streams session data over WebSocket to a remote recorder.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  config.WebSocketConfig
}

// New creates a new WebSocket storage backend.
func New(cfg config.WebSocketConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		conn: newConnection(
			newRetryPolicy(cfg.InitialBackoff, cfg.MaxBackoff, cfg.MaxAttempts),
			log.With("component", "storage", "dialect", "websocket"),
		),
		cfg: cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if !b.conn.send(data) {
		return fmt.Errorf("%s dropped: send channel full", msgType)
	}
	return nil
}

// StartSession sends the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.setReplay(data)
	return b.await(data, streaming.TypeStartSession)
}

// EndSession sends end_session and waits for server ack.
func (b *Backend) EndSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeEndSession, streaming.EndSessionPayload{
		SessionID:       s.ID.String(),
		EndedAt:         s.EndedAt,
		DurationSeconds: s.Duration.Seconds(),
	})
	if err != nil {
		return err
	}
	defer b.conn.setReplay(nil)
	return b.await(data, streaming.TypeEndSession)
}

func (b *Backend) await(data []byte, ackFor string) error {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	return b.conn.request(ctx, data, ackFor)
}

func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	return b.sendEnvelope(streaming.TypeSnapshot, s)
}

func (b *Backend) RecordSignal(s *core.RawSignal) error {
	return b.sendEnvelope(streaming.TypeSignal, streaming.NewSignalPayload(*s))
}

// Stats reports the messages still waiting to be written.
func (b *Backend) Stats() storage.Stats {
	return storage.Stats{PendingSnapshots: b.conn.pending()}
}
