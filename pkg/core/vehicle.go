// pkg/core/vehicle.go
package core

import "time"

// Tire is the display view of one tire.
type Tire struct {
	TemperatureC float64 `json:"temperatureC"`
	PressurePsi  float64 `json:"pressurePsi"`
}

// Snapshot is the immutable display state published to the render layer
// once per tick or inbound signal. Tires is only set by the simulation.
type Snapshot struct {
	Seq          uint64    `json:"seq"`
	Time         time.Time `json:"time"`
	Source       string    `json:"source"`
	SpeedKmh     int       `json:"speedKmh"`
	RPM          int       `json:"rpm"`
	Gear         Gear      `json:"gear"`
	Acceleration float64   `json:"acceleration"`
	Braking      float64   `json:"braking"`
	TurboActive  bool      `json:"turboActive"`
	Tires        []Tire    `json:"tires,omitempty"`
}

// RawSignal is one inbound message from the remote vehicle. Fields are
// pointers so that absent values can be told apart from zero.
type RawSignal struct {
	Gas        *float64  `json:"gas"`
	Brake      *float64  `json:"brake"`
	Gear       *string   `json:"gear"`
	Motor      *int      `json:"motor"`
	ReceivedAt time.Time `json:"-"`
}
