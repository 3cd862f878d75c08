// Package session holds the driver session: the user record loaded once
// from a scoped key-value store and the session clock.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rcdash/telemetry/pkg/core"
)

// ErrNotFound is returned when no user is stored under a key.
var ErrNotFound = errors.New("user not found")

// DefaultKey is the key the user record is stored under.
const DefaultKey = "currentUser"

// Store persists the user record as a JSON blob.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LoadUser reads and decodes the user stored under key.
func LoadUser(ctx context.Context, s Store, key string) (core.User, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return core.User{}, err
	}
	var u core.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return core.User{}, fmt.Errorf("decode user %q: %w", key, err)
	}
	return u, nil
}

// SaveUser encodes u and stores it under key.
func SaveUser(ctx context.Context, s Store, key string, u core.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return s.Put(ctx, key, raw)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
