package telemetry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcdash/telemetry/pkg/core"
)

func signal(gas, brake float64, gear string, motor int) core.RawSignal {
	return core.RawSignal{Gas: &gas, Brake: &brake, Gear: &gear, Motor: &motor}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name  string
		motor int
		speed int
		rpm   int
	}{
		{"neutral", 1500, 0, 800},
		{"below neutral", 1200, 0, 800},
		{"midpoint", 1750, 40, 4400},
		{"full", 2000, 80, 8000},
		{"above full", 2300, 80, 8000},
		{"quarter", 1625, 20, 2600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Derive(signal(0.5, 0.1, "3", tt.motor), DefaultDerivedMaxSpeedKmh)
			require.NoError(t, err)
			assert.Equal(t, tt.speed, snap.SpeedKmh)
			assert.Equal(t, tt.rpm, snap.RPM)
			assert.Equal(t, core.Gear3, snap.Gear)
			assert.Equal(t, 0.5, snap.Acceleration)
			assert.Equal(t, 0.1, snap.Braking)
			assert.Nil(t, snap.Tires)
		})
	}
}

func TestDeriveMaxSpeedScale(t *testing.T) {
	snap, err := Derive(signal(0, 0, "5", 2000), 280)
	require.NoError(t, err)
	assert.Equal(t, 280, snap.SpeedKmh)
}

func TestDeriveIsPure(t *testing.T) {
	sig := signal(0.95, 0, "N", 1830)
	first, err := Derive(sig, DefaultDerivedMaxSpeedKmh)
	require.NoError(t, err)
	second, err := Derive(sig, DefaultDerivedMaxSpeedKmh)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Derive not deterministic (-first +second):\n%s", diff)
	}
	assert.True(t, first.TurboActive)
	assert.Equal(t, core.GearNeutral, first.Gear)
}

func TestDeriveIncomplete(t *testing.T) {
	full := signal(0.5, 0, "2", 1700)
	nan := math.NaN()

	tests := []struct {
		name   string
		mutate func(*core.RawSignal)
	}{
		{"no gas", func(s *core.RawSignal) { s.Gas = nil }},
		{"no brake", func(s *core.RawSignal) { s.Brake = nil }},
		{"no gear", func(s *core.RawSignal) { s.Gear = nil }},
		{"no motor", func(s *core.RawSignal) { s.Motor = nil }},
		{"nan gas", func(s *core.RawSignal) { s.Gas = &nan }},
		{"unknown gear", func(s *core.RawSignal) { g := "R"; s.Gear = &g }},
		{"gas above one", func(s *core.RawSignal) { v := 1.7; s.Gas = &v }},
		{"negative brake", func(s *core.RawSignal) { v := -0.2; s.Brake = &v }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := full
			tt.mutate(&sig)
			_, err := Derive(sig, DefaultDerivedMaxSpeedKmh)
			assert.ErrorIs(t, err, ErrIncompleteSignal)
		})
	}

	_, err := Derive(full, DefaultDerivedMaxSpeedKmh)
	assert.NoError(t, err)

	edge := signal(1, 0, "N", 1500)
	snap, err := Derive(edge, DefaultDerivedMaxSpeedKmh)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, snap.Acceleration)
}

func TestDerivedTurbo(t *testing.T) {
	assert.False(t, DerivedTurbo(0.85), "simulation threshold does not apply")
	assert.False(t, DerivedTurbo(0.9))
	assert.True(t, DerivedTurbo(0.91))
}

func TestMotorRatio(t *testing.T) {
	assert.Zero(t, MotorRatio(0))
	assert.Equal(t, 0.5, MotorRatio(1750))
	assert.Equal(t, 1.0, MotorRatio(2500))
}

func TestNewVehicleStateSnapshot(t *testing.T) {
	snap := NewVehicleState().Snapshot()
	assert.Zero(t, snap.SpeedKmh)
	assert.Equal(t, 800, snap.RPM)
	assert.Equal(t, core.GearNeutral, snap.Gear)
	require.Len(t, snap.Tires, TireCount)
	assert.Equal(t, core.Tire{TemperatureC: 70, PressurePsi: 25}, snap.Tires[0])
}
