package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rcdash/telemetry/internal/model"
	"github.com/rcdash/telemetry/pkg/core"
)

// DriverToCore converts a GORM model.Driver to a core.User.
func DriverToCore(d model.Driver) core.User {
	return core.User{
		ID:       d.ID,
		Username: d.Username,
		Email:    d.Email,
	}
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) (core.Session, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return core.Session{}, fmt.Errorf("invalid session id %q: %w", s.ID, err)
	}

	out := core.Session{
		ID:        id,
		User:      DriverToCore(s.Driver),
		Source:    s.Source,
		StartedAt: s.StartedAt,
		Duration:  time.Duration(s.DurationSeconds * float64(time.Second)),
	}
	if out.User.ID == "" {
		out.User.ID = s.DriverID
	}
	if s.EndedAt != nil {
		out.EndedAt = *s.EndedAt
	}
	return out, nil
}

// SnapshotToCore converts a GORM model.SnapshotRecord to a core.Snapshot.
func SnapshotToCore(r model.SnapshotRecord) (core.Snapshot, error) {
	gear, err := core.ParseGear(r.Gear)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot %d: %w", r.ID, err)
	}

	var tires []core.Tire
	if len(r.Tires) > 0 {
		if err := json.Unmarshal(r.Tires, &tires); err != nil {
			return core.Snapshot{}, fmt.Errorf("snapshot %d tires: %w", r.ID, err)
		}
	}
	if len(tires) == 0 {
		tires = nil
	}

	return core.Snapshot{
		Seq:          r.Seq,
		Time:         r.Time,
		Source:       r.Source,
		SpeedKmh:     r.SpeedKmh,
		RPM:          r.RPM,
		Gear:         gear,
		Acceleration: r.Acceleration,
		Braking:      r.Braking,
		TurboActive:  r.TurboActive,
		Tires:        tires,
	}, nil
}

// SignalToCore converts a GORM model.SignalRecord to a core.RawSignal.
func SignalToCore(r model.SignalRecord) core.RawSignal {
	return core.RawSignal{
		Gas:        r.Gas,
		Brake:      r.Brake,
		Gear:       r.Gear,
		Motor:      r.Motor,
		ReceivedAt: r.Time,
	}
}
