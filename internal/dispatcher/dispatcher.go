package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rcdash/telemetry/pkg/core"
)

// Event kinds.
const (
	KindSnapshot = "snapshot"
	KindSignal   = "signal"
)

// ErrQueueFull is returned when a buffered sink drops an event.
var ErrQueueFull = errors.New("queue full")

// Event is one item produced by the telemetry pipeline.
type Event struct {
	Kind      string
	Snapshot  *core.Snapshot
	Signal    *core.RawSignal
	Timestamp time.Time
}

// SnapshotEvent wraps s. The snapshot is copied so sinks never share it.
func SnapshotEvent(s core.Snapshot) Event {
	return Event{Kind: KindSnapshot, Snapshot: &s, Timestamp: s.Time}
}

// SignalEvent wraps sig.
func SignalEvent(sig core.RawSignal) Event {
	return Event{Kind: KindSignal, Signal: &sig, Timestamp: sig.ReceivedAt}
}

// HandlerFunc consumes an event.
type HandlerFunc func(Event) error

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the sink async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered sink block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the sink.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type sink struct {
	name    string
	handler HandlerFunc
}

// Dispatcher fans events out to every sink registered for their kind.
type Dispatcher struct {
	sinks  map[string][]sink
	logger Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool
	workers sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		sinks:   make(map[string][]sink),
		buffers: make(map[string]chan Event),
		logger:  logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events in queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("sink", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a named sink for the given event kind. Sinks must be
// registered before the first Dispatch.
func (d *Dispatcher) Register(kind, name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h
	key := kind + "/" + name

	if cfg.logged {
		handler = d.withLogging(key, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(key, cfg.bufferSize, cfg.blocking, handler)
	}

	d.sinks[kind] = append(d.sinks[kind], sink{name: name, handler: handler})
}

// Dispatch hands e to every sink of its kind. Errors from sinks are joined;
// a failing sink never stops the others.
func (d *Dispatcher) Dispatch(e Event) error {
	sinks, ok := d.sinks[e.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind: %s", e.Kind)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher closed")
	}
	var errs []error
	for _, s := range sinks {
		if err := s.handler(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// HasHandler returns true if any sink is registered for kind.
func (d *Dispatcher) HasHandler(kind string) bool {
	return len(d.sinks[kind]) > 0
}

// Sinks lists the sink names registered for kind.
func (d *Dispatcher) Sinks(kind string) []string {
	names := make([]string, 0, len(d.sinks[kind]))
	for _, s := range d.sinks[kind] {
		names = append(names, s.name)
	}
	return names
}

// QueueLengths returns the backlog of every buffered sink, keyed by
// kind/name.
func (d *Dispatcher) QueueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for key, buf := range d.buffers {
		out[key] = len(buf)
	}
	return out
}

// Close stops accepting events and waits until every buffered sink has
// drained its queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) withBuffer(key string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[key] = buffer
	d.mu.Unlock()

	sinkAttr := attribute.String("sink", key)

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for e := range buffer {
			_ = h(e)
			d.processed.Add(context.Background(), 1, metric.WithAttributes(sinkAttr))
		}
	}()

	if blocking {
		return func(e Event) error {
			buffer <- e
			return nil
		}
	}

	return func(e Event) error {
		select {
		case buffer <- e:
			return nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(sinkAttr))
			return fmt.Errorf("%w: %s", ErrQueueFull, key)
		}
	}
}

func (d *Dispatcher) withLogging(key string, h HandlerFunc) HandlerFunc {
	return func(e Event) error {
		start := time.Now()
		d.logger.Debug("handling event", "sink", key)

		err := h(e)

		if err != nil {
			d.logger.Error("event failed", "sink", key, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "sink", key, "duration", time.Since(start))
		}

		return err
	}
}
