package convert

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rcdash/telemetry/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := core.Session{
		ID:        uuid.New(),
		User:      core.User{ID: "u1", Username: "max", Email: "max@example.com"},
		Source:    "live",
		StartedAt: start,
		EndedAt:   start.Add(95 * time.Second),
		Duration:  95 * time.Second,
	}

	m := CoreToSession(in)
	assert.Equal(t, in.ID.String(), m.ID)
	assert.Equal(t, "u1", m.DriverID)
	require.NotNil(t, m.EndedAt)
	assert.InDelta(t, 95.0, m.DurationSeconds, 1e-9)

	out, err := SessionToCore(m)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestCoreToSession_OpenSession(t *testing.T) {
	m := CoreToSession(core.Session{ID: uuid.New(), StartedAt: time.Now()})
	assert.Nil(t, m.EndedAt)
	assert.Zero(t, m.DurationSeconds)
}

func TestSessionToCore_InvalidID(t *testing.T) {
	m := CoreToSession(core.Session{ID: uuid.New()})
	m.ID = "not-a-uuid"

	_, err := SessionToCore(m)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := core.Snapshot{
		Seq:          7,
		Time:         time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
		Source:       "simulated",
		SpeedKmh:     87,
		RPM:          5219,
		Gear:         core.Gear2,
		Acceleration: 0.9,
		TurboActive:  true,
		Tires:        []core.Tire{{TemperatureC: 79.1, PressurePsi: 25}, {TemperatureC: 78.4, PressurePsi: 25}},
	}

	r := CoreToSnapshot(in)
	assert.Equal(t, "2", r.Gear)
	assert.JSONEq(t, `[{"temperatureC":79.1,"pressurePsi":25},{"temperatureC":78.4,"pressurePsi":25}]`, string(r.Tires))

	out, err := SnapshotToCore(r)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotWithoutTires(t *testing.T) {
	r := CoreToSnapshot(core.Snapshot{Gear: core.GearNeutral})
	assert.Equal(t, "[]", string(r.Tires))
	assert.Equal(t, "N", r.Gear)

	out, err := SnapshotToCore(r)
	require.NoError(t, err)
	assert.Nil(t, out.Tires)
}

func TestSnapshotToCore_BadGear(t *testing.T) {
	r := CoreToSnapshot(core.Snapshot{})
	r.Gear = "R"

	_, err := SnapshotToCore(r)
	assert.ErrorIs(t, err, core.ErrUnknownGear)
}

func TestSignalRoundTrip(t *testing.T) {
	gas, motor := 0.4, 1700
	at := time.Date(2026, 3, 1, 10, 0, 2, 0, time.UTC)
	in := core.RawSignal{Gas: &gas, Motor: &motor, ReceivedAt: at}

	r := CoreToSignal(in)
	assert.Nil(t, r.Brake)
	assert.Nil(t, r.Gear)
	assert.Equal(t, at, r.Time)

	out := SignalToCore(r)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("signal mismatch (-want +got):\n%s", diff)
	}
}

func TestCoreToSignal_StampsMissingTime(t *testing.T) {
	r := CoreToSignal(core.RawSignal{})
	assert.False(t, r.Time.IsZero())
}
