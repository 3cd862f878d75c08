// internal/storage/memory/memory.go
package memory

import (
	"sync"
	"time"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/pkg/core"
)

// Backend keeps the session in memory and exports it to JSON when it ends
type Backend struct {
	cfg          config.MemoryConfig
	tickInterval time.Duration

	session   *core.Session
	snapshots []core.Snapshot
	signals   []core.RawSignal

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend. tickInterval is the simulation tick,
// used for the turbo time in the summary.
func New(cfg config.MemoryConfig, tickInterval time.Duration) *Backend {
	return &Backend{
		cfg:          cfg,
		tickInterval: tickInterval,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	copied := *s
	b.session = &copied
	b.snapshots = nil
	b.signals = nil
	b.lastExportPath = ""
	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session != nil && s != nil {
		b.session.EndedAt = s.EndedAt
		b.session.Duration = s.Duration
	}
	return b.exportJSON()
}

// RecordSnapshot appends a snapshot
func (b *Backend) RecordSnapshot(s *core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.snapshots = append(b.snapshots, *s)
	return nil
}

// RecordSignal appends a raw signal
func (b *Backend) RecordSignal(s *core.RawSignal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.signals = append(b.signals, *s)
	return nil
}

// Snapshots returns a copy of the recorded snapshots.
func (b *Backend) Snapshots() []core.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.Snapshot(nil), b.snapshots...)
}

// Signals returns a copy of the recorded signals.
func (b *Backend) Signals() []core.RawSignal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.RawSignal(nil), b.signals...)
}

// GetExportedFilePath returns the path of the last export, empty before one.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
