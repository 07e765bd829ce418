package fitgen

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/claude/planfit/internal/models"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

// Step build errors.
var (
	ErrUnsupportedPhaseVariant = errors.New("unsupported phase variant")
	ErrUnsupportedPhaseKind    = errors.New("unsupported phase kind")
	ErrUnsupportedDurationType = errors.New("unsupported duration type")
)

// StepRef identifies the leaf a step is built from.
// IntervalIndex is -1 for a SinglePhase.
type StepRef struct {
	Date          string
	Kind          string
	PhaseIndex    int
	IntervalIndex int
}

// StepError wraps a failure to build one workout step.
type StepError struct {
	StepRef
	Err error
}

func (e *StepError) Error() string {
	if e.IntervalIndex >= 0 {
		return fmt.Sprintf("building step for %s phase %d interval %d (%s): %v",
			e.Date, e.PhaseIndex, e.IntervalIndex, e.Kind, e.Err)
	}
	return fmt.Sprintf("building step for %s phase %d (%s): %v", e.Date, e.PhaseIndex, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepBuilder turns phase leaves into FIT workout_step messages.
type StepBuilder struct {
	schema TargetSchema
	log    *slog.Logger
}

// NewStepBuilder creates a StepBuilder that resolves custom target fields
// through schema.
func NewStepBuilder(schema TargetSchema, log *slog.Logger) *StepBuilder {
	return &StepBuilder{schema: schema, log: log}
}

// Build maps one leaf to one workout step. Errors are *StepError.
func (b *StepBuilder) Build(leaf models.Leaf, ref StepRef) (*mesgdef.WorkoutStep, error) {
	step, err := b.build(leaf, ref)
	if err != nil {
		return nil, &StepError{StepRef: ref, Err: err}
	}
	return step, nil
}

func (b *StepBuilder) build(leaf models.Leaf, ref StepRef) (*mesgdef.WorkoutStep, error) {
	intensity, err := intensityOf(leaf)
	if err != nil {
		return nil, err
	}
	seg := leaf.Details()

	step := mesgdef.NewWorkoutStep(nil)
	step.Intensity = intensity

	switch seg.DurationType {
	case models.DurationTime:
		v, err := SecondsToMillis(seg.DurationValue)
		if err != nil {
			return nil, fmt.Errorf("setting duration: %w", err)
		}
		step.DurationType = typedef.WktStepDurationTime
		step.DurationValue = v
	case models.DurationDistance:
		v, err := MetersToCentimeters(seg.DurationValue)
		if err != nil {
			return nil, fmt.Errorf("setting duration: %w", err)
		}
		step.DurationType = typedef.WktStepDurationDistance
		step.DurationValue = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDurationType, seg.DurationType)
	}

	if err := b.setSpeedTarget(step, seg.Intensity, ref); err != nil {
		return nil, fmt.Errorf("setting pace targets: %w", err)
	}
	return step, nil
}

// setSpeedTarget writes a custom speed range. Pace bounds are m/s.
func (b *StepBuilder) setSpeedTarget(step *mesgdef.WorkoutStep, in models.Intensity, ref StepRef) error {
	low, err := SpeedToScaled(in.PaceMin)
	if err != nil {
		return fmt.Errorf("pace_min: %w", err)
	}
	high, err := SpeedToScaled(in.PaceMax)
	if err != nil {
		return fmt.Errorf("pace_max: %w", err)
	}

	step.TargetType = typedef.WktStepTargetSpeed
	step.TargetValue = 0 // 0 selects the custom range

	for _, t := range []struct {
		bound Bound
		raw   uint32
	}{{BoundLow, low}, {BoundHigh, high}} {
		field, err := b.schema.CustomTarget(step.TargetType, t.bound)
		if errors.Is(err, ErrFieldUnsupported) {
			b.log.Debug("custom target field not in profile, skipping",
				"date", ref.Date, "phase_index", ref.PhaseIndex, "bound", t.bound.String())
			continue
		}
		if err != nil {
			return fmt.Errorf("looking up %s target field: %w", t.bound, err)
		}
		field.Set(step, t.raw)
	}
	return nil
}

// intensityOf maps each leaf variant and kind to its FIT intensity class.
func intensityOf(leaf models.Leaf) (typedef.Intensity, error) {
	switch l := leaf.(type) {
	case models.SinglePhase:
		switch l.Kind {
		case models.PhaseWarmup:
			return typedef.IntensityWarmup, nil
		case models.PhaseCooldown:
			return typedef.IntensityCooldown, nil
		case models.PhaseSteadyState:
			return typedef.IntensityActive, nil
		}
	case models.Interval:
		switch l.Kind {
		case models.IntervalWork:
			return typedef.IntensityActive, nil
		case models.IntervalRecovery:
			return typedef.IntensityRecovery, nil
		}
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedPhaseVariant, leaf)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPhaseKind, leaf.LeafKind())
}
