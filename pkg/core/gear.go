// pkg/core/gear.go
package core

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownGear is returned when a gear label is neither "N" nor "1".."5".
var ErrUnknownGear = errors.New("unknown gear")

// Gear is the selected transmission gear. Neutral is the zero value and is
// ordered below the numeric gears.
type Gear uint8

const (
	GearNeutral Gear = iota
	Gear1
	Gear2
	Gear3
	Gear4
	Gear5
)

// TopGear is the highest selectable gear.
const TopGear = Gear5

// gearRatios is indexed by gear. Index 0 is a placeholder for Neutral and
// must never be used as a divisor.
var gearRatios = [...]float64{0, 2.97, 2.04, 1.45, 1.00, 0.75}

// GearRatio returns the ratio for g. ok is false for Neutral and for values
// outside the table.
func GearRatio(g Gear) (ratio float64, ok bool) {
	if g == GearNeutral || int(g) >= len(gearRatios) {
		return 0, false
	}
	return gearRatios[g], true
}

// IsNeutral reports whether g is Neutral.
func (g Gear) IsNeutral() bool {
	return g == GearNeutral
}

// String returns the display label: "N" or "1".."5".
func (g Gear) String() string {
	if g == GearNeutral {
		return "N"
	}
	return strconv.Itoa(int(g))
}

// ParseGear parses a display label. "N" (case-insensitive) is Neutral.
func ParseGear(label string) (Gear, error) {
	if label == "N" || label == "n" {
		return GearNeutral, nil
	}
	n, err := strconv.Atoi(label)
	if err != nil || n < int(Gear1) || n > int(TopGear) {
		return GearNeutral, fmt.Errorf("%w: %q", ErrUnknownGear, label)
	}
	return Gear(n), nil
}

// MarshalText implements encoding.TextMarshaler.
func (g Gear) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gear) UnmarshalText(b []byte) error {
	parsed, err := ParseGear(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}
