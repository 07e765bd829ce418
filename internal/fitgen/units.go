package fitgen

import (
	"errors"
	"fmt"
	"math"
)

// Domain errors returned by the unit conversions.
var (
	ErrNegativeDuration = errors.New("duration must not be negative")
	ErrNegativeDistance = errors.New("distance must not be negative")
	ErrNonPositivePace  = errors.New("pace must be positive")
	ErrNonPositiveSpeed = errors.New("speed must be positive")
	ErrOutOfRange       = errors.New("value does not fit a FIT uint32 field")
)

// SecondsToMillis converts a duration in seconds to FIT milliseconds.
func SecondsToMillis(seconds float64) (uint32, error) {
	if seconds < 0 || math.IsNaN(seconds) {
		return 0, fmt.Errorf("%w: %v s", ErrNegativeDuration, seconds)
	}
	return toUint32(seconds * 1000)
}

// MetersToCentimeters converts a distance in meters to FIT centimeters.
func MetersToCentimeters(meters float64) (uint32, error) {
	if meters < 0 || math.IsNaN(meters) {
		return 0, fmt.Errorf("%w: %v m", ErrNegativeDistance, meters)
	}
	return toUint32(meters * 100)
}

// PaceToSpeed converts a pace in seconds per kilometer to a speed in mm/s.
func PaceToSpeed(secondsPerKm float64) (uint32, error) {
	if !(secondsPerKm > 0) {
		return 0, fmt.Errorf("%w: %v s/km", ErrNonPositivePace, secondsPerKm)
	}
	return toUint32(1_000_000 / secondsPerKm)
}

// SpeedToScaled converts a speed in m/s to the FIT speed encoding (scale 1000).
func SpeedToScaled(metersPerSecond float64) (uint32, error) {
	if !(metersPerSecond > 0) {
		return 0, fmt.Errorf("%w: %v m/s", ErrNonPositiveSpeed, metersPerSecond)
	}
	return toUint32(metersPerSecond * 1000)
}

// toUint32 rounds half away from zero. math.MaxUint32 is the FIT invalid
// marker for uint32 fields, so it is out of range too.
func toUint32(v float64) (uint32, error) {
	r := math.Round(v)
	if math.IsInf(r, 0) || r >= math.MaxUint32 {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	return uint32(r), nil
}
