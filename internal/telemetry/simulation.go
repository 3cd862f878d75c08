package telemetry

import (
	"math"

	"github.com/samber/lo"

	"github.com/rcdash/telemetry/pkg/core"
)

const (
	brakeMinSpeedKmh = 5.0
	brakeChance      = 0.95 // a draw above this starts a brake burst
	brakeThreshold   = 0.1
	neutralSpeedKmh  = 5.0
	fullStopSpeedKmh = 1.0
	upshiftRPMShare  = 0.8
	upshiftRPMCut    = 0.7
	speedPerRPM      = 0.035
	downshiftPerRPM  = 0.025
	simTurboGas      = 0.8
	brakeSpeedDecay  = 0.05
	brakeRPMRelax    = 0.1
	throttleRPMGain  = 200.0
	dragRPMLoss      = 100.0
	engineBrakeRPM   = 50.0
	tireJitterSpan   = 2.0
)

// Rand is the randomness the simulation draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Inputs are the random draws consumed by one simulation tick.
type Inputs struct {
	Gas        float64
	Brake      float64
	TireJitter [TireCount]float64
}

// DrawInputs draws the throttle, the occasional brake burst and the tire
// jitter for one tick. Braking is only considered above 5 km/h.
func DrawInputs(r Rand, speedKmh float64) Inputs {
	in := Inputs{Gas: r.Float64()}
	if speedKmh > brakeMinSpeedKmh && r.Float64() > brakeChance {
		in.Brake = r.Float64()
	}
	for i := range in.TireJitter {
		in.TireJitter[i] = (r.Float64() - 0.5) * tireJitterSpan
	}
	return in
}

// SimulatedTurbo is the turbo flag of the simulation.
func SimulatedTurbo(g core.Gear, gas, brake float64) bool {
	return !g.IsNeutral() && gas > simTurboGas && brake < brakeThreshold
}

// Step advances the vehicle by one tick and returns the next state.
// prev is not modified.
func Step(prev VehicleState, in Inputs) VehicleState {
	next := prev
	speed, rpm, gear := prev.SpeedKmh, prev.RPM, prev.Gear
	gas, brake := in.Gas, in.Brake

	if brake > brakeThreshold {
		speed -= speed * brakeSpeedDecay * brake
		rpm -= (rpm - IdleRPM) * brakeRPMRelax
	} else if ratio, ok := core.GearRatio(gear); !ok {
		// RPM follows the pedal in Neutral and the car does not move.
		rpm = IdleRPM + (MaxRPM-IdleRPM)*gas
	} else {
		rpm += gas*throttleRPMGain - (rpm/MaxRPM)*dragRPMLoss - engineBrakeRPM
		rpm = lo.Clamp(rpm, IdleRPM, MaxRPM)
		speed = (rpm / ratio) * speedPerRPM
		if rpm > MaxRPM*upshiftRPMShare && gear < core.TopGear {
			gear++
			rpm *= upshiftRPMCut
		}
	}

	if gear > core.Gear1 {
		ratio, _ := core.GearRatio(gear)
		if speed < (rpm/ratio)*downshiftPerRPM {
			gear--
		}
	}

	if speed < neutralSpeedKmh && brake == 0 {
		gear = core.GearNeutral
	}
	if speed < fullStopSpeedKmh {
		speed = 0
	}

	updateTires(&next.Tires, speed, in.TireJitter)

	next.Gear = gear
	next.Gas = gas
	next.Brake = brake
	next.TurboActive = SimulatedTurbo(gear, gas, brake)
	next.SpeedKmh = math.Floor(speed)
	next.RPM = math.Floor(rpm)
	return next
}
