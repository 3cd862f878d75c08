// internal/storage/storage.go
package storage

import (
	"time"

	"github.com/rcdash/telemetry/pkg/core"
)

// Backend is the interface all session recording implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession(s *core.Session) error

	// Recording
	RecordSnapshot(s *core.Snapshot) error
	RecordSignal(s *core.RawSignal) error
}

// Uploadable is an optional interface for storage backends that produce
// a file per session.
type Uploadable interface {
	GetExportedFilePath() string
}

// Stats is the write backlog of a batching backend.
type Stats struct {
	PendingSnapshots  int
	PendingSignals    int
	LastWriteDuration time.Duration
}

// StatsReporter is implemented by backends that batch writes.
type StatsReporter interface {
	Stats() Stats
}

// Nop discards everything. It is used when storage.type is "none".
type Nop struct{}

func (Nop) Init() error                         { return nil }
func (Nop) Close() error                        { return nil }
func (Nop) StartSession(*core.Session) error    { return nil }
func (Nop) EndSession(*core.Session) error      { return nil }
func (Nop) RecordSnapshot(*core.Snapshot) error { return nil }
func (Nop) RecordSignal(*core.RawSignal) error  { return nil }
