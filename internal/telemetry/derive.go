package telemetry

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/rcdash/telemetry/pkg/core"
)

// ErrIncompleteSignal is returned when a raw message lacks a field needed
// for the mapping. The caller keeps its previous snapshot.
var ErrIncompleteSignal = errors.New("incomplete signal")

const (
	// MotorNeutral is the pulse width of a stopped motor.
	MotorNeutral = 1500
	// MotorFull is the pulse width of full drive.
	MotorFull = 2000

	// DefaultDerivedMaxSpeedKmh is the speed reached at MotorFull.
	DefaultDerivedMaxSpeedKmh = 80.0

	derivedTurboGas = 0.9
)

// DerivedTurbo is the turbo flag of the live-signal mapping. Its threshold
// is deliberately different from SimulatedTurbo.
func DerivedTurbo(gas float64) bool {
	return gas > derivedTurboGas
}

// MotorRatio maps a motor pulse width onto [0, 1].
func MotorRatio(motor int) float64 {
	if motor <= MotorNeutral {
		return 0
	}
	return lo.Clamp(float64(motor-MotorNeutral)/float64(MotorFull-MotorNeutral), 0, 1)
}

// Derive maps one raw signal onto a display snapshot. It keeps no state:
// the same signal always yields the same snapshot. Tires are not modelled.
func Derive(sig core.RawSignal, maxSpeedKmh float64) (core.Snapshot, error) {
	if err := validate(sig); err != nil {
		return core.Snapshot{}, err
	}
	gear, err := core.ParseGear(*sig.Gear)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: %w", ErrIncompleteSignal, err)
	}

	snap := core.Snapshot{
		Gear:         gear,
		Acceleration: *sig.Gas,
		Braking:      *sig.Brake,
		TurboActive:  DerivedTurbo(*sig.Gas),
		RPM:          int(IdleRPM),
	}
	if *sig.Motor <= MotorNeutral {
		return snap, nil
	}
	ratio := MotorRatio(*sig.Motor)
	snap.SpeedKmh = int(math.Floor(ratio * maxSpeedKmh))
	snap.RPM = int(math.Floor(IdleRPM + ratio*(MaxRPM-IdleRPM)))
	return snap, nil
}

// pedalOK reports whether v is a usable pedal position in [0, 1].
func pedalOK(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && *v >= 0 && *v <= 1
}

func validate(sig core.RawSignal) error {
	var missing []string
	if !pedalOK(sig.Gas) {
		missing = append(missing, "gas")
	}
	if !pedalOK(sig.Brake) {
		missing = append(missing, "brake")
	}
	if sig.Gear == nil {
		missing = append(missing, "gear")
	}
	if sig.Motor == nil {
		missing = append(missing, "motor")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing or out of range %v", ErrIncompleteSignal, missing)
	}
	return nil
}
