// Package telemetry holds the vehicle state engine: the randomized
// simulation step and the stateless mapping from raw device signals.
package telemetry

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/rcdash/telemetry/pkg/core"
)

const (
	IdleRPM = 800.0
	MaxRPM  = 8000.0

	// TickInterval is the default simulation period.
	TickInterval = 100 * time.Millisecond

	TireCount           = 4
	RestingTireTempC    = 70.0
	NominalTirePressure = 25.0
)

// TireState is the thermal state of one tire. Pressure is never mutated.
type TireState struct {
	TemperatureC float64
	PressurePsi  float64
}

// VehicleState is the mutable kinematic state owned by a single source.
// Speed and RPM are kept as floats between ticks, but Step floors them
// before storing, so every tick starts from whole numbers.
type VehicleState struct {
	SpeedKmh    float64
	RPM         float64
	Gear        core.Gear
	Gas         float64
	Brake       float64
	TurboActive bool
	Tires       [TireCount]TireState
}

// NewVehicleState returns a stationary vehicle idling in Neutral.
func NewVehicleState() VehicleState {
	s := VehicleState{
		RPM:  IdleRPM,
		Gear: core.GearNeutral,
	}
	for i := range s.Tires {
		s.Tires[i] = TireState{TemperatureC: RestingTireTempC, PressurePsi: NominalTirePressure}
	}
	return s
}

// Acceleration is the display value of the throttle net of braking.
func (s VehicleState) Acceleration() float64 {
	return math.Max(0, s.Gas-s.Brake)
}

// Snapshot converts the state into the display shape. The returned value
// shares nothing with s.
func (s VehicleState) Snapshot() core.Snapshot {
	return core.Snapshot{
		SpeedKmh:     int(math.Floor(s.SpeedKmh)),
		RPM:          int(math.Floor(s.RPM)),
		Gear:         s.Gear,
		Acceleration: s.Acceleration(),
		Braking:      s.Brake,
		TurboActive:  s.TurboActive,
		Tires: lo.Map(s.Tires[:], func(t TireState, _ int) core.Tire {
			return core.Tire{TemperatureC: t.TemperatureC, PressurePsi: t.PressurePsi}
		}),
	}
}
