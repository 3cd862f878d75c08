package worker

import (
	"fmt"

	"github.com/rcdash/telemetry/internal/dispatcher"
)

// SinkName is the name the recorder registers under for both kinds.
const SinkName = "recorder"

// RegisterHandlers registers the recorder with the dispatcher. Both sinks
// are buffered and drop when full so the tick loop never waits on storage.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.KindSnapshot, SinkName, m.handleSnapshot, dispatcher.Buffered(m.deps.BufferSize), dispatcher.Logged())
	d.Register(dispatcher.KindSignal, SinkName, m.handleSignal, dispatcher.Buffered(m.deps.BufferSize), dispatcher.Logged())
}

func (m *Manager) handleSnapshot(e dispatcher.Event) error {
	if e.Snapshot == nil {
		return fmt.Errorf("snapshot event without snapshot")
	}
	if err := m.backend.RecordSnapshot(e.Snapshot); err != nil {
		m.failures.Add(1)
		return fmt.Errorf("failed to record snapshot %d: %w", e.Snapshot.Seq, err)
	}
	m.snapshots.Add(1)
	return nil
}

func (m *Manager) handleSignal(e dispatcher.Event) error {
	if e.Signal == nil {
		return fmt.Errorf("signal event without signal")
	}
	if err := m.backend.RecordSignal(e.Signal); err != nil {
		m.failures.Add(1)
		return fmt.Errorf("failed to record signal: %w", err)
	}
	m.signals.Add(1)
	return nil
}
