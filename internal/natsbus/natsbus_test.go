package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/dispatcher"
	"github.com/rcdash/telemetry/internal/session"
	"github.com/rcdash/telemetry/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeKV) get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) put(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(f.data, key)
	return nil
}

func newFakeStore() *KVStore {
	return &KVStore{backend: &fakeKV{data: map[string][]byte{}}}
}

func TestKVStoreMapsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newFakeStore()

	_, err := s.Get(ctx, session.DefaultKey)
	assert.ErrorIs(t, err, session.ErrNotFound)

	require.NoError(t, session.SaveUser(ctx, s, session.DefaultKey, core.User{ID: "u1", Username: "ada"}))
	u, err := session.LoadUser(ctx, s, session.DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "ada", u.Username)

	require.NoError(t, session.Logout(ctx, s, session.DefaultKey))
	require.NoError(t, s.Delete(ctx, session.DefaultKey))
	_, err = s.Get(ctx, session.DefaultKey)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestKVStoreOpenRegisters(t *testing.T) {
	s := newFakeStore()

	sess, err := session.Open(context.Background(), s, session.DefaultKey, "ada", "simulated")
	require.NoError(t, err)
	assert.Equal(t, "ada", sess.User().Username)

	_, err = s.Get(context.Background(), session.DefaultKey)
	assert.NoError(t, err)
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestPublisherHandleSnapshot(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "rcdash.snapshot", slog.Default())

	require.NoError(t, p.HandleSnapshot(dispatcher.SnapshotEvent(core.Snapshot{Seq: 9, SpeedKmh: 42, Gear: core.Gear3})))
	require.NoError(t, p.HandleSnapshot(dispatcher.Event{Kind: dispatcher.KindSnapshot}))

	require.Len(t, conn.payloads, 1)
	assert.Equal(t, "rcdash.snapshot", conn.subjects[0])
	assert.Equal(t, uint64(1), p.Published())

	var got core.Snapshot
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, uint64(9), got.Seq)
	assert.Equal(t, 42, got.SpeedKmh)
	assert.Equal(t, core.Gear3, got.Gear)
}

func TestPublisherError(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("closed")}, "s", slog.Default())

	err := p.HandleSnapshot(dispatcher.SnapshotEvent(core.Snapshot{}))
	assert.ErrorContains(t, err, "closed")
	assert.Zero(t, p.Published())
}

func TestConnectFails(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1"}, slog.Default())
	assert.Error(t, err)
}
