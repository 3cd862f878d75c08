// Package source provides the two telemetry sources: a local simulation
// and a live subscription to the remote vehicle.
package source

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/rcdash/telemetry/pkg/core"
)

// ErrAlreadyStarted is returned by Start on a source that is running or
// has been stopped. Sources are single use.
var ErrAlreadyStarted = errors.New("source already started")

const (
	TypeSimulated = "simulated"
	TypeLive      = "live"
)

// TelemetrySource produces display snapshots. The channel returned by Start
// holds at most one pending snapshot; a reader that falls behind only ever
// sees the latest one. The channel is closed once the source has stopped.
type TelemetrySource interface {
	Name() string
	Start(ctx context.Context) (<-chan core.Snapshot, error)
	// Stop releases the ticker or subscription. Safe to call repeatedly.
	Stop() error
}

// Option configures a source.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	onSignal func(core.RawSignal)
}

// WithLogger sets the source logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSignalHook registers a callback for every decoded raw signal, valid
// or not. Only the live source produces signals.
func WithSignalHook(fn func(core.RawSignal)) Option {
	return func(o *options) {
		o.onSignal = fn
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("source", name)
	return o
}

// lifecycle holds the start/stop bookkeeping shared by both sources.
type lifecycle struct {
	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// begin marks the source started and returns the run context.
func (l *lifecycle) begin(ctx context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil, ErrAlreadyStarted
	}
	l.started = true
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	return runCtx, nil
}

func (l *lifecycle) finished() {
	close(l.done)
}

func (l *lifecycle) stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.started = true
		cancel, done := l.cancel, l.done
		l.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
	})
}

// publish replaces any pending snapshot with s. There is exactly one writer
// per channel, so the loop finishes in at most two passes.
func publish(ch chan core.Snapshot, s core.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
