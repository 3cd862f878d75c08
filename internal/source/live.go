package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	ws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rcdash/telemetry/internal/telemetry"
	"github.com/rcdash/telemetry/pkg/core"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	handshakeTimeout      = 10 * time.Second
)

// LiveConfig configures the live-signal subscription.
type LiveConfig struct {
	URL string
	// MaxSpeedKmh is the speed reached at full motor power.
	MaxSpeedKmh    float64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxAttempts caps consecutive failed reconnects. Zero retries forever.
	MaxAttempts int
}

// LiveSignalSource subscribes to the remote vehicle over a websocket and
// maps every inbound message with telemetry.Derive.
type LiveSignalSource struct {
	lifecycle
	cfg    LiveConfig
	opts   options
	inst   instruments
	dialer *ws.Dialer
	seq    uint64
}

// NewLive validates cfg and creates a live source. It does not dial until
// Start.
func NewLive(cfg LiveConfig, opts ...Option) (*LiveSignalSource, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid live signal URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid live signal URL %q: scheme must be ws or wss", cfg.URL)
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = telemetry.DefaultDerivedMaxSpeedKmh
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.InitialBackoff)
	}
	return &LiveSignalSource{
		cfg:    cfg,
		opts:   buildOptions(TypeLive, opts),
		inst:   newInstruments(),
		dialer: &ws.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

func (s *LiveSignalSource) Name() string { return TypeLive }

// Start launches the subscription loop. A failed first dial is treated like
// any other drop and retried in the background.
func (s *LiveSignalSource) Start(ctx context.Context) (<-chan core.Snapshot, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan core.Snapshot, 1)
	go func() {
		defer s.finished()
		defer close(out)
		s.run(runCtx, out)
	}()
	return out, nil
}

// Stop closes the subscription and waits for the loop to exit.
func (s *LiveSignalSource) Stop() error {
	s.stop()
	return nil
}

func (s *LiveSignalSource) run(ctx context.Context, out chan core.Snapshot) {
	log := s.opts.logger
	backoff := s.cfg.InitialBackoff
	failures := 0

	for {
		conn, _, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
		if err == nil {
			log.Info("Live signal connected", "url", s.cfg.URL)
			failures = 0
			backoff = s.cfg.InitialBackoff
			err = s.consume(ctx, conn, out)
		}
		if ctx.Err() != nil {
			log.Info("Live signal stopped")
			return
		}

		failures++
		if s.cfg.MaxAttempts > 0 && failures > s.cfg.MaxAttempts {
			log.Error("Live signal reconnect failed after max attempts", "maxAttempts", s.cfg.MaxAttempts, "error", err)
			return
		}
		log.Warn("Live signal lost, reconnecting", "attempt", failures, "backoff", backoff, "error", err)
		s.inst.reconnects.Add(ctx, 1)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("Live signal stopped")
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

// consume reads messages until the connection fails or ctx is done.
func (s *LiveSignalSource) consume(ctx context.Context, conn *ws.Conn, out chan core.Snapshot) error {
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stopped:
			_ = conn.Close()
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.handle(ctx, message, out)
	}
}

func (s *LiveSignalSource) handle(ctx context.Context, message []byte, out chan core.Snapshot) {
	var sig core.RawSignal
	if err := json.Unmarshal(message, &sig); err != nil {
		s.skip(ctx, "malformed", err)
		return
	}
	sig.ReceivedAt = time.Now()
	if s.opts.onSignal != nil {
		s.opts.onSignal(sig)
	}

	snap, err := telemetry.Derive(sig, s.cfg.MaxSpeedKmh)
	if err != nil {
		s.skip(ctx, "incomplete", err)
		return
	}
	s.seq++
	snap.Seq = s.seq
	snap.Time = sig.ReceivedAt
	snap.Source = TypeLive
	publish(out, snap)
	s.inst.published.Add(ctx, 1)
}

func (s *LiveSignalSource) skip(ctx context.Context, reason string, err error) {
	s.opts.logger.Debug("Skipping live signal", "reason", reason, "error", err)
	s.inst.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
