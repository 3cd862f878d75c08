package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/rcdash/telemetry/pkg/streaming"
)

const (
	outboxSize       = 10_000
	ackBufferSize    = 16
	writeWait        = 10 * time.Second
	ackTimeout       = 10 * time.Second
	handshakeTimeout = 5 * time.Second

	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// retryPolicy bounds the redial loop. attempts == 0 retries forever.
type retryPolicy struct {
	initial  time.Duration
	max      time.Duration
	attempts int
}

func newRetryPolicy(initial, maxBackoff time.Duration, attempts int) retryPolicy {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	if maxBackoff < initial {
		maxBackoff = max(defaultMaxBackoff, initial)
	}
	return retryPolicy{initial: initial, max: maxBackoff, attempts: attempts}
}

func (p retryPolicy) exhausted(attempt int) bool {
	return p.attempts > 0 && attempt > p.attempts
}

// link is one dialed socket. gone is closed when the link is torn down,
// which stops its write pump.
type link struct {
	conn *ws.Conn
	gone chan struct{}
}

// connection owns the recorder socket. Writes go through a single pump per
// link; a failed link is replaced in the background and the cached
// start_session is replayed first.
type connection struct {
	target *url.URL
	dialer *ws.Dialer
	retry  retryPolicy
	log    *slog.Logger

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	mu       sync.Mutex
	active   *link
	closed   bool
	startMsg []byte
}

func newConnection(retry retryPolicy, log *slog.Logger) *connection {
	return &connection{
		dialer: &ws.Dialer{HandshakeTimeout: handshakeTimeout},
		retry:  retry,
		log:    log,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBufferSize),
		done:   make(chan struct{}),
	}
}

// open validates rawURL, dials once and starts the pumps. A failing first
// dial is returned to the caller rather than retried.
func (c *connection) open(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid recorder URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid recorder URL scheme %q", u.Scheme)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	c.target = u

	conn, _, err := c.dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial recorder: %w", err)
	}
	c.attach(conn)
	return nil
}

// attach makes conn the active link. It reports false and closes conn when
// the connection was shut down in the meantime.
func (c *connection) attach(conn *ws.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	l := &link{conn: conn, gone: make(chan struct{})}
	c.active = l
	c.mu.Unlock()

	go c.pumpOut(l)
	go c.pumpIn(l)
	return true
}

func writeFrame(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) pumpOut(l *link) {
	for {
		select {
		case <-c.done:
			return
		case <-l.gone:
			return
		case data := <-c.outbox:
			if err := writeFrame(l.conn, data); err != nil {
				// Put it back so the next link sends it.
				select {
				case c.outbox <- data:
				default:
				}
				c.drop(l, err)
				return
			}
		}
	}
}

func (c *connection) pumpIn(l *link) {
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			c.drop(l, err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.log.Debug("Ignoring recorder message", "raw", string(message))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.log.Debug("Ack buffer full, dropping", "for", ack.For)
		}
	}
}

// drop tears l down and starts a redial. Both pumps of a failing link call
// it; only the first call for the active link has any effect.
func (c *connection) drop(l *link, cause error) {
	c.mu.Lock()
	if c.closed || c.active != l {
		c.mu.Unlock()
		return
	}
	c.active = nil
	close(l.gone)
	c.mu.Unlock()

	_ = l.conn.Close()
	c.log.Warn("Recorder connection lost", "error", cause)
	go c.redial()
}

func (c *connection) redial() {
	backoff := c.retry.initial
	for attempt := 1; !c.retry.exhausted(attempt); attempt++ {
		c.log.Info("Redialing recorder", "attempt", attempt, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, c.retry.max)

		conn, _, err := c.dialer.Dial(c.target.String(), nil)
		if err != nil {
			c.log.Warn("Recorder redial failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		start := c.startMsg
		c.mu.Unlock()
		if start != nil {
			if err := writeFrame(conn, start); err != nil {
				c.log.Warn("Replaying start_session failed", "error", err)
				_ = conn.Close()
				continue
			}
		}

		if c.attach(conn) {
			c.log.Info("Recorder reconnected", "attempt", attempt)
		}
		return
	}

	c.log.Error("Recorder redial gave up", "maxAttempts", c.retry.attempts)
}

// setReplay caches the start_session frame sent after every redial. nil
// clears it.
func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	c.startMsg = data
	c.mu.Unlock()
}

// send queues data for the write pump. It never blocks.
func (c *connection) send(data []byte) bool {
	select {
	case c.outbox <- data:
		return true
	default:
		c.log.Warn("Recorder outbox full, dropping message")
		return false
	}
}

func (c *connection) pending() int {
	return len(c.outbox)
}

// request queues data and waits for the recorder to ack ackFor.
func (c *connection) request(ctx context.Context, data []byte, ackFor string) error {
	if !c.send(data) {
		return fmt.Errorf("outbox full, %q not sent", ackFor)
	}
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for ack of %q: %w", ackFor, ctx.Err())
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame on the active link and stops all pumps.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	l := c.active
	c.active = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	_ = l.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return l.conn.Close()
}
