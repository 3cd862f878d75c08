// Package hub is the render gateway: it serves the latest display frame
// over HTTP and streams every frame to websocket clients. It only reads
// snapshots and never feeds anything back to the engine.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/rcdash/telemetry/internal/broadcast"
	"github.com/rcdash/telemetry/internal/display"
	"github.com/rcdash/telemetry/internal/telemetry"
	"github.com/rcdash/telemetry/pkg/core"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
	shutdownTimeout = 5 * time.Second
)

// Config holds the gateway settings.
type Config struct {
	Addr string
	// AllowedOrigins lists accepted websocket origins. Empty accepts any.
	AllowedOrigins []string
}

// Hub owns the HTTP server and the frame fan-out.
type Hub struct {
	cfg      Config
	scale    display.Scale
	elapsed  func() time.Duration
	logger   *slog.Logger
	latest   atomic.Pointer[display.Frame]
	frames   chan display.Frame
	bcast    broadcast.Server[display.Frame]
	upgrader ws.Upgrader
	srv      *http.Server
	clients  atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithElapsed sets the session clock shown in every frame.
func WithElapsed(fn func() time.Duration) Option {
	return func(h *Hub) {
		h.elapsed = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = l
	}
}

// New creates a hub. Call Start to begin serving.
func New(cfg Config, scale display.Scale, opts ...Option) *Hub {
	h := &Hub{
		cfg:     cfg,
		scale:   scale,
		elapsed: func() time.Duration { return 0 },
		logger:  slog.Default(),
		frames:  make(chan display.Frame, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub")
	h.upgrader = ws.Upgrader{CheckOrigin: h.checkOrigin}

	// Idle in Neutral until the first snapshot; tires are left to the source.
	initial := scale.NewFrame(core.Snapshot{RPM: int(telemetry.IdleRPM), Gear: core.GearNeutral}, 0)
	h.latest.Store(&initial)
	h.bcast = broadcast.New("frame", "hub", h.frames, broadcast.WithLogger[display.Frame](h.logger))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.serveWS)
	mux.HandleFunc("GET /snapshot", h.serveSnapshot)
	mux.HandleFunc("GET /healthcheck", h.serveHealth)
	h.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Handler exposes the routes, mainly for tests.
func (h *Hub) Handler() http.Handler {
	return h.srv.Handler
}

// Publish turns s into a frame, stores it as the latest and offers it to
// the stream. A frame still waiting for the stream is replaced.
func (h *Hub) Publish(s core.Snapshot) {
	f := h.scale.NewFrame(s, h.elapsed())
	h.latest.Store(&f)
	for {
		select {
		case h.frames <- f:
			return
		default:
		}
		select {
		case <-h.frames:
		default:
		}
	}
}

// Latest returns the most recent frame.
func (h *Hub) Latest() display.Frame {
	return *h.latest.Load()
}

// Clients is the number of connected stream clients.
func (h *Hub) Clients() int64 {
	return h.clients.Load()
}

// Start listens on the configured address and serves in the background.
// The returned address is the bound one, useful with port 0.
func (h *Hub) Start() (net.Addr, error) {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return nil, err
	}
	h.logger.Info("Render gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Render gateway stopped", "error", err)
		}
	}()
	return ln.Addr(), nil
}

// Shutdown stops the HTTP server and closes every stream.
func (h *Hub) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	h.bcast.Close()
	return h.srv.Shutdown(ctx)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) serveSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Latest()); err != nil {
		h.logger.Warn("Failed to write snapshot", "error", err)
	}
}

func (h *Hub) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "clients": h.Clients()})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	h.clients.Add(1)
	defer h.clients.Add(-1)

	sub := h.bcast.Subscribe()
	defer h.bcast.CancelSubscription(sub)

	// The reader only handles control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	if err := h.write(conn, h.Latest()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case f, ok := <-sub:
			if !ok {
				_ = conn.WriteControl(ws.CloseMessage,
					ws.FormatCloseMessage(ws.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			if err := h.write(conn, f); err != nil {
				h.logger.Debug("Websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(conn *ws.Conn, f display.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(f)
}
