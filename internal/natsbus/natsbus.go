// Package natsbus connects the engine to NATS: snapshots are published on
// a subject and the user record can live in a JetStream key-value bucket.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/dispatcher"
	"github.com/rcdash/telemetry/internal/session"
)

// Connect opens a NATS connection that keeps reconnecting in the background.
func Connect(cfg config.NATSConfig, log *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("rcdash"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return nc, nil
}

type (
	// kvBackend is the part of a jetstream.KeyValue the store needs.
	kvBackend interface {
		get(ctx context.Context, key string) ([]byte, error)
		put(ctx context.Context, key string, value []byte) error
		delete(ctx context.Context, key string) error
	}

	jetstreamKV struct {
		kv jetstream.KeyValue
	}

	// KVStore is a session.Store backed by a JetStream key-value bucket.
	KVStore struct {
		backend kvBackend
	}
)

var _ session.Store = (*KVStore)(nil)

// NewKVStore creates (or reuses) the bucket and returns a store on it.
func NewKVStore(ctx context.Context, nc *nats.Conn, bucket string) (*KVStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "rcdash user record",
	})
	if err != nil {
		return nil, fmt.Errorf("key-value bucket %s: %w", bucket, err)
	}
	return &KVStore{backend: jetstreamKV{kv: kv}}, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.backend.get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	return s.backend.put(ctx, key, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.backend.delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (j jetstreamKV) get(ctx context.Context, key string) ([]byte, error) {
	kve, err := j.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return kve.Value(), nil
}

func (j jetstreamKV) put(ctx context.Context, key string, value []byte) error {
	_, err := j.kv.Put(ctx, key, value)
	return err
}

func (j jetstreamKV) delete(ctx context.Context, key string) error {
	return j.kv.Delete(ctx, key)
}

// publisher is satisfied by *nats.Conn.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Publisher sends every snapshot as JSON on a subject.
type Publisher struct {
	conn      publisher
	subject   string
	log       *slog.Logger
	published atomic.Uint64
}

func NewPublisher(nc *nats.Conn, subject string, log *slog.Logger) *Publisher {
	return newPublisher(nc, subject, log)
}

func newPublisher(conn publisher, subject string, log *slog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, log: log}
}

// Published returns how many snapshots went out.
func (p *Publisher) Published() uint64 {
	return p.published.Load()
}

// HandleSnapshot is the dispatcher sink.
func (p *Publisher) HandleSnapshot(e dispatcher.Event) error {
	if e.Snapshot == nil {
		return nil
	}
	data, err := json.Marshal(e.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.published.Add(1)
	return nil
}
