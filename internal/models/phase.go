package models

import (
	"encoding/json"
	"fmt"
)

// Phase kinds carried in the "type" discriminator.
const (
	PhaseWarmup      = "warmup"
	PhaseCooldown    = "cooldown"
	PhaseSteadyState = "steady_state"
	PhaseIntervalSet = "interval_set"

	IntervalWork     = "work"
	IntervalRecovery = "recovery"
)

// Duration types for a leaf.
const (
	DurationTime     = "time"
	DurationDistance = "distance"
)

// Phase is one entry of a workout: either a SinglePhase or an IntervalSet.
// The set of implementations is closed.
type Phase interface {
	PhaseKind() string
	isPhase()
}

// Leaf is a phase element that becomes exactly one workout step:
// a SinglePhase or an Interval.
type Leaf interface {
	LeafKind() string
	Details() Segment
	isLeaf()
}

// Intensity holds the target ranges of a leaf. Pace bounds are speeds in m/s.
type Intensity struct {
	Effort               string  `json:"effort"`
	PaceMin              float64 `json:"pace_min"`
	PaceMax              float64 `json:"pace_max"`
	PerceivedExertionMin float64 `json:"perceived_exertion_min"`
	PerceivedExertionMax float64 `json:"perceived_exertion_max"`
}

// Segment is the measurable part shared by every leaf.
type Segment struct {
	DurationType  string    `json:"duration_type"`
	DurationValue float64   `json:"duration_value"`
	DurationUnit  string    `json:"duration_unit"`
	Intensity     Intensity `json:"intensity"`
	Notes         string    `json:"notes"`
}

// SinglePhase is a continuous warmup, cooldown or steady-state block.
type SinglePhase struct {
	Kind string `json:"type"`
	Segment
}

// IntervalSet repeats its intervals Repetitions times, in order.
type IntervalSet struct {
	Repetitions int        `json:"repetitions"`
	Intervals   []Interval `json:"intervals"`
}

// Interval is a work or recovery element of an IntervalSet.
type Interval struct {
	Kind string `json:"type"`
	Segment
}

func (p SinglePhase) PhaseKind() string { return p.Kind }
func (p SinglePhase) LeafKind() string  { return p.Kind }
func (p SinglePhase) Details() Segment  { return p.Segment }
func (SinglePhase) isPhase()            {}
func (SinglePhase) isLeaf()             {}

func (IntervalSet) PhaseKind() string { return PhaseIntervalSet }
func (IntervalSet) isPhase()          {}

func (i Interval) LeafKind() string { return i.Kind }
func (i Interval) Details() Segment { return i.Segment }
func (Interval) isLeaf()            {}

// StepCount is the number of workout steps the set unrolls into.
func (s IntervalSet) StepCount() int {
	return s.Repetitions * len(s.Intervals)
}

// MarshalJSON writes the interval_set discriminator alongside the fields.
func (s IntervalSet) MarshalJSON() ([]byte, error) {
	type plain IntervalSet
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{PhaseIntervalSet, plain(s)})
}

var segmentFields = []string{"duration_type", "duration_value", "duration_unit", "intensity", "notes"}

// UnmarshalJSON enforces presence of every intensity field.
func (in *Intensity) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "effort", "pace_min", "pace_max",
		"perceived_exertion_min", "perceived_exertion_max"); err != nil {
		return err
	}
	type plain Intensity
	return decodeStrict(data, (*plain)(in))
}

// UnmarshalJSON decodes a work or recovery interval.
func (i *Interval) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, append([]string{"type"}, segmentFields...)...); err != nil {
		return err
	}
	type plain Interval
	if err := decodeStrict(data, (*plain)(i)); err != nil {
		return err
	}
	switch i.Kind {
	case IntervalWork, IntervalRecovery:
		return nil
	default:
		return fmt.Errorf("unknown interval type %q", i.Kind)
	}
}

// decodePhase picks the Phase implementation from the "type" field.
func decodePhase(data json.RawMessage) (Phase, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, err
	}

	switch tag.Type {
	case PhaseWarmup, PhaseCooldown, PhaseSteadyState:
		if err := requireFields(data, append([]string{"type"}, segmentFields...)...); err != nil {
			return nil, err
		}
		var p SinglePhase
		if err := decodeStrict(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PhaseIntervalSet:
		if err := requireFields(data, "type", "repetitions", "intervals"); err != nil {
			return nil, err
		}
		var raw struct {
			Type        string     `json:"type"`
			Repetitions int        `json:"repetitions"`
			Intervals   []Interval `json:"intervals"`
		}
		if err := decodeStrict(data, &raw); err != nil {
			return nil, err
		}
		return IntervalSet{Repetitions: raw.Repetitions, Intervals: raw.Intervals}, nil
	case "":
		return nil, fmt.Errorf("missing phase type")
	default:
		return nil, fmt.Errorf("unknown phase type %q", tag.Type)
	}
}
