package worker

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rcdash/telemetry/internal/storage"
)

// DefaultBufferSize is the recorder queue depth when none is configured.
const DefaultBufferSize = 1000

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger     *slog.Logger
	BufferSize int
}

// Manager records dispatched snapshots and signals to a storage backend
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	snapshots atomic.Uint64
	signals   atomic.Uint64
	failures  atomic.Uint64
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.BufferSize <= 0 {
		deps.BufferSize = DefaultBufferSize
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't batch writes.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	return m.BackendStats().LastWriteDuration
}

// BackendStats returns the backend's write backlog, zero if it has none.
func (m *Manager) BackendStats() storage.Stats {
	if p, ok := m.backend.(storage.StatsReporter); ok {
		return p.Stats()
	}
	return storage.Stats{}
}

// Counters returns how many snapshots and signals were recorded and how
// many record calls failed.
func (m *Manager) Counters() (snapshots, signals, failures uint64) {
	return m.snapshots.Load(), m.signals.Load(), m.failures.Load()
}
