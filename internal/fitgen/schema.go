package fitgen

import (
	"errors"
	"fmt"

	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
)

// ErrFieldUnsupported reports that the profile has no custom target
// sub-field for the requested target type. Callers may skip the field.
var ErrFieldUnsupported = errors.New("custom target field not supported")

// Bound selects the low or high end of a custom target range.
type Bound int

const (
	BoundLow Bound = iota
	BoundHigh
)

func (b Bound) String() string {
	switch b {
	case BoundLow:
		return "low"
	case BoundHigh:
		return "high"
	default:
		return fmt.Sprintf("bound(%d)", int(b))
	}
}

// TargetField is a writable custom target sub-field of a workout step.
type TargetField struct {
	Name string
	Set  func(step *mesgdef.WorkoutStep, raw uint32)
}

// TargetSchema answers whether a workout step can carry a custom target
// bound for a target type.
type TargetSchema interface {
	CustomTarget(target typedef.WktStepTarget, bound Bound) (TargetField, error)
}

// customTargetSubFields mirrors the dynamic sub-fields of workout_step
// custom_target_value_low (5) and custom_target_value_high (6), keyed by the
// target_type value that selects them.
var customTargetSubFields = map[typedef.WktStepTarget][2]string{
	typedef.WktStepTargetSpeed:     {"custom_target_speed_low", "custom_target_speed_high"},
	typedef.WktStepTargetHeartRate: {"custom_target_heart_rate_low", "custom_target_heart_rate_high"},
	typedef.WktStepTargetCadence:   {"custom_target_cadence_low", "custom_target_cadence_high"},
	typedef.WktStepTargetPower:     {"custom_target_power_low", "custom_target_power_high"},
}

// ProfileSchema resolves custom target fields against the FIT profile for a
// protocol version.
type ProfileSchema struct {
	Version proto.Version
}

// DefaultSchema targets FIT protocol 2.0.
func DefaultSchema() ProfileSchema {
	return ProfileSchema{Version: proto.V2}
}

// CustomTarget returns ErrFieldUnsupported when the target type has no custom
// range sub-field. Any other error means the lookup itself is invalid.
func (s ProfileSchema) CustomTarget(target typedef.WktStepTarget, bound Bound) (TargetField, error) {
	switch s.Version {
	case proto.V1, proto.V2:
	default:
		return TargetField{}, fmt.Errorf("unknown FIT protocol version %d", uint8(s.Version))
	}

	names, ok := customTargetSubFields[target]
	if !ok {
		return TargetField{}, fmt.Errorf("%w: target type %v", ErrFieldUnsupported, target)
	}

	switch bound {
	case BoundLow:
		return TargetField{
			Name: names[0],
			Set:  func(step *mesgdef.WorkoutStep, raw uint32) { step.CustomTargetValueLow = raw },
		}, nil
	case BoundHigh:
		return TargetField{
			Name: names[1],
			Set:  func(step *mesgdef.WorkoutStep, raw uint32) { step.CustomTargetValueHigh = raw },
		}, nil
	default:
		return TargetField{}, fmt.Errorf("invalid custom target %v", bound)
	}
}
