package telemetry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcdash/telemetry/pkg/core"
)

// seqRand replays a fixed sequence of draws.
type seqRand struct {
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func TestDrawInputs(t *testing.T) {
	t.Run("no brake draw below 5 km/h", func(t *testing.T) {
		r := &seqRand{vals: []float64{0.3, 0.5, 0.5, 0.5, 0.5}}
		in := DrawInputs(r, 5)
		assert.Equal(t, 0.3, in.Gas)
		assert.Zero(t, in.Brake)
		assert.Equal(t, 5, r.i, "gas plus four jitters")
		assert.Equal(t, [TireCount]float64{}, in.TireJitter)
	})

	t.Run("brake burst above threshold", func(t *testing.T) {
		r := &seqRand{vals: []float64{0.3, 0.96, 0.4, 1, 0, 0.75, 0.25}}
		in := DrawInputs(r, 20)
		assert.Equal(t, 0.4, in.Brake)
		assert.Equal(t, [TireCount]float64{1, -1, 0.5, -0.5}, in.TireJitter)
	})

	t.Run("no burst when chance draw is low", func(t *testing.T) {
		r := &seqRand{vals: []float64{0.3, 0.95, 0.5, 0.5, 0.5, 0.5}}
		in := DrawInputs(r, 20)
		assert.Zero(t, in.Brake)
		assert.Equal(t, 6, r.i)
	})
}

func TestStepNeutralTracksThrottle(t *testing.T) {
	s := NewVehicleState()
	for range 50 {
		s = Step(s, Inputs{Gas: 1.0})
		assert.Equal(t, core.GearNeutral, s.Gear)
		assert.Zero(t, s.SpeedKmh)
	}
	assert.Equal(t, MaxRPM, s.RPM)

	s = Step(s, Inputs{Gas: 0.5})
	assert.Equal(t, 4400.0, s.RPM)
}

func TestStepUpshift(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear1
	prev.RPM = 7500
	prev.SpeedKmh = 88

	next := Step(prev, Inputs{Gas: 0.5})

	// 7500 + 100 - 93.75 - 50 = 7456.25, then cut by 0.7
	assert.Equal(t, core.Gear2, next.Gear)
	assert.Equal(t, 5219.0, next.RPM)
	assert.Equal(t, 87.0, next.SpeedKmh)
	assert.Equal(t, 7500.0, prev.RPM, "prev must not be modified")
}

func TestStepTopGearDoesNotShift(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear5
	prev.RPM = 7990

	next := Step(prev, Inputs{Gas: 1})
	assert.Equal(t, core.Gear5, next.Gear)
	assert.Equal(t, MaxRPM, next.RPM)
}

func TestStepBraking(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear3
	prev.RPM = 4800
	prev.SpeedKmh = 100

	next := Step(prev, Inputs{Gas: 0.9, Brake: 1})

	assert.Equal(t, 95.0, next.SpeedKmh)
	assert.Equal(t, 4400.0, next.RPM)
	assert.Equal(t, core.Gear3, next.Gear)
	assert.False(t, next.TurboActive)
	assert.Equal(t, 1.0, next.Brake)
	assert.Zero(t, next.Acceleration())
}

func TestStepDownshift(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear4
	prev.RPM = 6000
	prev.SpeedKmh = 100

	// braking keeps rpm high while speed drops below the gear's floor
	next := Step(prev, Inputs{Brake: 0.5})
	assert.Equal(t, 97.0, next.SpeedKmh)
	assert.Equal(t, core.Gear3, next.Gear)

	prev.SpeedKmh = 10
	next = Step(prev, Inputs{Brake: 0.5})
	assert.Equal(t, core.Gear3, next.Gear)
}

func TestStepFullStop(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear1
	prev.SpeedKmh = 0.9

	next := Step(prev, Inputs{Brake: 0.5})
	assert.Zero(t, next.SpeedKmh)
	assert.Equal(t, core.Gear1, next.Gear, "gear is held while braking")

	next = Step(next, Inputs{})
	assert.Equal(t, core.Gear1, next.Gear)
	assert.Equal(t, 9.0, next.SpeedKmh, "idle in first gear still rolls")
}

func TestStepNeutralReset(t *testing.T) {
	prev := NewVehicleState()
	prev.SpeedKmh = 3

	next := Step(prev, Inputs{Gas: 0.2})
	assert.Equal(t, core.GearNeutral, next.Gear)
	assert.Equal(t, 3.0, next.SpeedKmh)
	assert.False(t, next.TurboActive)
}

func TestStepTires(t *testing.T) {
	prev := NewVehicleState()
	prev.Gear = core.Gear3
	prev.RPM = 3000

	next := Step(prev, Inputs{Gas: 0.5, TireJitter: [TireCount]float64{1, -1, 0, 0.5}})
	for _, tire := range next.Tires {
		assert.Equal(t, NominalTirePressure, tire.PressurePsi)
	}
	assert.Greater(t, next.Tires[0].TemperatureC, next.Tires[1].TemperatureC)
	assert.InDelta(t, 2.0, next.Tires[0].TemperatureC-next.Tires[1].TemperatureC, 1e-9)
}

func TestTireTemperature(t *testing.T) {
	assert.Equal(t, 70.0, TireTemperature(0, 0))
	assert.Equal(t, 100.0, TireTemperature(300, 0))
	assert.Equal(t, 84.0, TireTemperature(150, -1))
}

func TestSimulatedTurbo(t *testing.T) {
	tests := []struct {
		gear  core.Gear
		gas   float64
		brake float64
		want  bool
	}{
		{core.GearNeutral, 1, 0, false},
		{core.Gear1, 0.81, 0, true},
		{core.Gear1, 0.8, 0, false},
		{core.Gear3, 0.95, 0.09, true},
		{core.Gear3, 0.95, 0.1, false},
		{core.Gear5, 0.85, 0, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimulatedTurbo(tt.gear, tt.gas, tt.brake), "%v gas=%v brake=%v", tt.gear, tt.gas, tt.brake)
	}
}

// TestStepProperties runs the randomized simulation and checks the
// invariants on every published state.
func TestStepProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	s := NewVehicleState()
	for range 20000 {
		in := DrawInputs(r, s.SpeedKmh)
		prev := s
		s = Step(prev, in)

		require.GreaterOrEqual(t, s.RPM, IdleRPM)
		require.LessOrEqual(t, s.RPM, MaxRPM)
		require.GreaterOrEqual(t, s.SpeedKmh, 0.0)
		if s.SpeedKmh < 1 {
			require.Zero(t, s.SpeedKmh)
		}
		if s.SpeedKmh < 5 && s.Brake == 0 {
			require.Equal(t, core.GearNeutral, s.Gear)
		}
		require.LessOrEqual(t, int(s.Gear)-int(prev.Gear), 1)
		require.GreaterOrEqual(t, int(s.Gear)-int(prev.Gear), -1)
		require.Equal(t, SimulatedTurbo(s.Gear, s.Gas, s.Brake), s.TurboActive)

		snap := s.Snapshot()
		require.Len(t, snap.Tires, TireCount)
		require.GreaterOrEqual(t, snap.Acceleration, 0.0)
	}
}
