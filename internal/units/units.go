// Package units converts speeds between the units trackers report in.
package units

import (
	"fmt"
	"strings"
)

// Unit names accepted by Parse.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	KNOT = "knot"
)

// ValidUnits lists every unit name, in the order used in error messages.
var ValidUnits = []string{MPS, MPH, KMPH, KPH, KNOT}

// metres per second in one unit
var perUnit = map[string]float64{
	MPS:  1,
	MPH:  0.44704,
	KMPH: 1 / 3.6,
	KPH:  1 / 3.6,
	KNOT: 1852.0 / 3600,
}

// IsValid reports whether unit is a known unit name.
func IsValid(unit string) bool {
	_, ok := perUnit[unit]
	return ok
}

// ValidUnitsString returns the unit names for error messages.
func ValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Parse normalizes a unit name. Matching ignores case and surrounding blanks.
func Parse(s string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(s))
	if !IsValid(u) {
		return "", fmt.Errorf("unknown unit %q (want one of %s)", s, ValidUnitsString())
	}
	return u, nil
}

// Factor returns the multiplier that converts a speed in from to a speed in
// to. Both units must be valid.
func Factor(from, to string) float64 {
	return perUnit[from] / perUnit[to]
}

// Convert converts one speed.
func Convert(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	return v * Factor(from, to)
}
