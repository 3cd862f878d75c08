// Package display computes the render-side values derived from a snapshot:
// the rev light strip, the odometer needle and the session clock.
package display

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/rcdash/telemetry/internal/telemetry"
	"github.com/rcdash/telemetry/pkg/core"
)

// Light is the state of one rev light.
type Light string

const (
	LightOff   Light = "off"
	LightGreen Light = "green"
	LightRed   Light = "red"
	LightShift Light = "shift"
)

const (
	RevLightCount = 10

	redZone   = 7.5
	shiftZone = 9.0

	needleSweepDeg = 270.0
	needleMinDeg   = -135.0
	needleMaxDeg   = 135.0
)

// RevLights returns the strip for rpm on a 0..maxRPM scale. Above 90% every
// light shows the shift colour.
func RevLights(rpm, maxRPM float64) [RevLightCount]Light {
	var lights [RevLightCount]Light
	level := 0.0
	if maxRPM > 0 {
		level = rpm / maxRPM * RevLightCount
	}
	for i := range lights {
		switch {
		case level > shiftZone:
			lights[i] = LightShift
		case level > float64(i) && level > redZone:
			lights[i] = LightRed
		case level > float64(i):
			lights[i] = LightGreen
		default:
			lights[i] = LightOff
		}
	}
	return lights
}

// NeedleAngle maps speed onto the odometer arc in degrees, 0 km/h at -135.
func NeedleAngle(speedKmh, maxSpeedKmh float64) float64 {
	if maxSpeedKmh <= 0 {
		return needleMinDeg
	}
	return lo.Clamp(speedKmh/maxSpeedKmh*needleSweepDeg+needleMinDeg, needleMinDeg, needleMaxDeg)
}

// FormatElapsed renders d as MM:SS. Minutes keep counting past an hour.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// Frame is what the render gateway sends for one snapshot.
type Frame struct {
	core.Snapshot
	RevLights   [RevLightCount]Light `json:"revLights"`
	NeedleDeg   float64              `json:"needleDeg"`
	MaxSpeedKmh float64              `json:"maxSpeedKmh"`
	Elapsed     string               `json:"elapsed,omitempty"`
}

// Scale holds the gauge ranges. MaxSpeedKmh is required configuration.
type Scale struct {
	MaxSpeedKmh float64
	MaxRPM      float64
}

// DefaultMaxRPM is the rev strip scale when none is configured.
const DefaultMaxRPM = telemetry.MaxRPM

// NewFrame decorates s for rendering.
func (sc Scale) NewFrame(s core.Snapshot, elapsed time.Duration) Frame {
	maxRPM := sc.MaxRPM
	if maxRPM <= 0 {
		maxRPM = DefaultMaxRPM
	}
	return Frame{
		Snapshot:    s,
		RevLights:   RevLights(float64(s.RPM), maxRPM),
		NeedleDeg:   NeedleAngle(float64(s.SpeedKmh), sc.MaxSpeedKmh),
		MaxSpeedKmh: sc.MaxSpeedKmh,
		Elapsed:     FormatElapsed(elapsed),
	}
}
