// Package broadcast fans one channel out to any number of subscribers.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultSendTimeout is how long a message waits on one slow listener
// before that listener is skipped.
const DefaultSendTimeout = 50 * time.Millisecond

type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	Close()
}

type server[T any] struct {
	name           string
	eventKey       string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	sendTimeout    time.Duration
	logger         *slog.Logger

	numRcv       atomic.Int64
	numSnd       atomic.Int64
	numSkip      atomic.Int64
	numListeners atomic.Int64
}

type Option[T any] func(*server[T])

// WithSendTimeout overrides DefaultSendTimeout.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.sendTimeout = d
	}
}

func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *server[T]) {
		s.logger = l
	}
}

// New starts serving source. The server stops when Close is called or
// source is closed; either way every listener channel is closed.
func New[T any](eventKey, name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		eventKey:       eventKey,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		sendTimeout:    DefaultSendTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("broadcast", name)
	s.setupMetrics()
	go s.serve()
	return s
}

// Subscribe returns a new listener channel. After Close it returns a
// closed channel.
func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T)
	select {
	case s.addListener <- ch:
	case <-s.done:
		close(ch)
	}
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.done:
	}
}

func (s *server[T]) Close() {
	s.logger.Info("Closing broadcast server",
		"rcv", s.numRcv.Load(), "snd", s.numSnd.Load(), "skip", s.numSkip.Load())
	s.cancel()
	<-s.done
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("rcdash.broadcast.%s", s.name))
	attrs := metric.WithAttributes(
		attribute.String("name", s.name),
		attribute.String("event", s.eventKey),
	)
	for _, d := range []struct {
		name  string
		desc  string
		value *atomic.Int64
	}{
		{"rcdash.broadcast.rcv", "Number of received messages", &s.numRcv},
		{"rcdash.broadcast.snd", "Number of sent messages", &s.numSnd},
		{"rcdash.broadcast.skip", "Number of skipped messages", &s.numSkip},
		{"rcdash.broadcast.listener", "Number of listeners", &s.numListeners},
	} {
		value := d.value
		if _, err := meter.Int64ObservableGauge(d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value.Load(), attrs)
				return nil
			})); err != nil {
			s.logger.Error("failed to register metric", "metric", d.name, "error", err)
		}
	}
}

func (s *server[T]) serve() {
	defer close(s.done)
	defer func() {
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
		s.numListeners.Store(0)
	}()

	timer := time.NewTimer(s.sendTimeout)
	timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
			s.numListeners.Store(int64(len(s.listeners)))
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
			s.numListeners.Store(int64(len(s.listeners)))
		case msg, ok := <-s.source:
			if !ok {
				s.logger.Debug("Broadcast source closed")
				return
			}
			s.numRcv.Add(1)
			for _, listener := range s.listeners {
				timer.Reset(s.sendTimeout)
				select {
				case listener <- msg:
					s.numSnd.Add(1)
					timer.Stop()
				case <-timer.C:
					s.numSkip.Add(1)
				}
			}
		}
	}
}
