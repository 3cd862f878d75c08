// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"time"

	"github.com/rcdash/telemetry/internal/model"
	"github.com/rcdash/telemetry/pkg/core"
	"gorm.io/datatypes"
)

// tiresToJSON converts the tire list to datatypes.JSON for DB storage.
func tiresToJSON(tires []core.Tire) datatypes.JSON {
	if len(tires) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(tires)
	return datatypes.JSON(data)
}

// CoreToDriver converts a core.User to a GORM model.Driver.
func CoreToDriver(u core.User) model.Driver {
	return model.Driver{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}

// CoreToSession converts a core.Session to a GORM model.Session.
// A zero EndedAt is stored as NULL.
func CoreToSession(s core.Session) model.Session {
	m := model.Session{
		ID:              s.ID.String(),
		DriverID:        s.User.ID,
		Driver:          CoreToDriver(s.User),
		Source:          s.Source,
		StartedAt:       s.StartedAt,
		DurationSeconds: s.Duration.Seconds(),
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		m.EndedAt = &ended
	}
	return m
}

// CoreToSnapshot converts a core.Snapshot to a GORM model.SnapshotRecord.
// SessionID is stamped by the writer.
func CoreToSnapshot(s core.Snapshot) model.SnapshotRecord {
	return model.SnapshotRecord{
		Time:         s.Time,
		Seq:          s.Seq,
		Source:       s.Source,
		SpeedKmh:     s.SpeedKmh,
		RPM:          s.RPM,
		Gear:         s.Gear.String(),
		Acceleration: s.Acceleration,
		Braking:      s.Braking,
		TurboActive:  s.TurboActive,
		Tires:        tiresToJSON(s.Tires),
	}
}

// CoreToSignal converts a core.RawSignal to a GORM model.SignalRecord.
func CoreToSignal(s core.RawSignal) model.SignalRecord {
	t := s.ReceivedAt
	if t.IsZero() {
		t = time.Now()
	}
	return model.SignalRecord{
		Time:  t,
		Gas:   s.Gas,
		Brake: s.Brake,
		Gear:  s.Gear,
		Motor: s.Motor,
	}
}
