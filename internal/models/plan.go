package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
)

// AreasOfFocus lists the accepted values for Week.AreaOfFocus.
var AreasOfFocus = []string{
	"aerobic_development",
	"anaerobic_development",
	"vo2_max_development",
	"base_training",
	"race_specific_development",
	"taper",
	"speed_development",
	"lactate_threshold_development",
	"endurance_development",
	"recovery",
}

// WorkoutSubtypes lists the accepted values for Workout.Subtypes.
var WorkoutSubtypes = []string{
	"easy",
	"long_run",
	"medium_long_run",
	"recovery",
	"tempo",
	"threshold",
	"vo2max_intervals",
	"speed_intervals",
	"hill_repeats",
	"fartlek",
	"progression",
	"race_pace",
	"marathon_pace",
	"steady_state",
	"lactate_threshold",
	"aerobic",
	"anaerobic_intervals",
	"sprint_intervals",
	"endurance",
	"base_building",
	"taper",
	"shakeout",
}

// PlanDuration is a value with its unit ("weeks", "meters", "seconds").
type PlanDuration struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// TrainingPlan is a complete multi-week plan for one athlete.
type TrainingPlan struct {
	PlanDuration PlanDuration `json:"plan_duration"`
	AthleteLevel string       `json:"athlete_level"`
	PrimaryGoal  string       `json:"primary_goal"`
	Weeks        []Week       `json:"weeks"`
	PlanNotes    string       `json:"plan_notes"`
}

// Week groups the workouts of one training week.
type Week struct {
	WeekNumber    int          `json:"week_number"`
	StartDate     string       `json:"start_date"`
	EndDate       string       `json:"end_date"`
	AreaOfFocus   string       `json:"area_of_focus"`
	TotalDistance PlanDuration `json:"total_distance"`
	TotalTime     PlanDuration `json:"total_time"`
	Workouts      []Workout    `json:"workouts"`
	RestDays      []string     `json:"rest_days"`
	WeekNotes     string       `json:"week_notes"`
}

// Workout is a single scheduled session. Phases run in order.
type Workout struct {
	WorkoutType            string       `json:"workout_type"`
	Subtypes               []string     `json:"workout_subtype"`
	ScheduledDate          string       `json:"scheduled_date"`
	TotalDistance          PlanDuration `json:"total_distance"`
	EstimatedDuration      PlanDuration `json:"estimated_duration"`
	Terrain                string       `json:"terrain"`
	Phases                 []Phase      `json:"phases"`
	AdditionalInstructions string       `json:"additional_instructions"`
}

// FirstSubtype returns the primary subtype, or "" if none is set.
func (w Workout) FirstSubtype() string {
	if len(w.Subtypes) == 0 {
		return ""
	}
	return w.Subtypes[0]
}

// LoadPlan reads and strictly decodes a plan JSON file.
func LoadPlan(path string) (*TrainingPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening plan: %w", err)
	}
	defer f.Close()
	return DecodePlan(f)
}

// DecodePlan decodes a plan from JSON. Unknown fields, missing fields and
// unknown enum values are rejected.
func DecodePlan(r io.Reader) (*TrainingPlan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var plan TrainingPlan
	if err := decodeStrict(data, &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	return &plan, nil
}

// UnmarshalJSON enforces presence of every plan field.
func (p *TrainingPlan) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "plan_duration", "athlete_level", "primary_goal", "weeks", "plan_notes"); err != nil {
		return err
	}
	type plain TrainingPlan
	return decodeStrict(data, (*plain)(p))
}

// UnmarshalJSON enforces presence of every week field and a known focus.
func (w *Week) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "week_number", "start_date", "end_date", "area_of_focus",
		"total_distance", "total_time", "workouts", "rest_days", "week_notes"); err != nil {
		return err
	}
	type plain Week
	if err := decodeStrict(data, (*plain)(w)); err != nil {
		return err
	}
	if !slices.Contains(AreasOfFocus, w.AreaOfFocus) {
		return fmt.Errorf("week %d: unknown area_of_focus %q", w.WeekNumber, w.AreaOfFocus)
	}
	return nil
}

// UnmarshalJSON decodes the phase list through its "type" discriminator.
func (w *Workout) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "workout_type", "workout_subtype", "scheduled_date", "total_distance",
		"estimated_duration", "terrain", "phases", "additional_instructions"); err != nil {
		return err
	}
	var raw struct {
		WorkoutType            string            `json:"workout_type"`
		Subtypes               []string          `json:"workout_subtype"`
		ScheduledDate          string            `json:"scheduled_date"`
		TotalDistance          PlanDuration      `json:"total_distance"`
		EstimatedDuration      PlanDuration      `json:"estimated_duration"`
		Terrain                string            `json:"terrain"`
		Phases                 []json.RawMessage `json:"phases"`
		AdditionalInstructions string            `json:"additional_instructions"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return err
	}
	for _, st := range raw.Subtypes {
		if !slices.Contains(WorkoutSubtypes, st) {
			return fmt.Errorf("workout %s: unknown workout_subtype %q", raw.ScheduledDate, st)
		}
	}

	phases := make([]Phase, 0, len(raw.Phases))
	for i, rp := range raw.Phases {
		p, err := decodePhase(rp)
		if err != nil {
			return fmt.Errorf("workout %s: phase %d: %w", raw.ScheduledDate, i, err)
		}
		phases = append(phases, p)
	}

	*w = Workout{
		WorkoutType:            raw.WorkoutType,
		Subtypes:               raw.Subtypes,
		ScheduledDate:          raw.ScheduledDate,
		TotalDistance:          raw.TotalDistance,
		EstimatedDuration:      raw.EstimatedDuration,
		Terrain:                raw.Terrain,
		Phases:                 phases,
		AdditionalInstructions: raw.AdditionalInstructions,
	}
	return nil
}

// decodeStrict unmarshals data into v, rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON value")
	}
	return nil
}

// requireFields checks that data is an object containing every named key
// with a non-null value. encoding/json would otherwise decode null as zero.
func requireFields(data []byte, names ...string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, n := range names {
		v, ok := obj[n]
		if !ok {
			return fmt.Errorf("missing required field %q", n)
		}
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return fmt.Errorf("required field %q is null", n)
		}
	}
	return nil
}

// UnmarshalJSON enforces presence of both value and unit.
func (d *PlanDuration) UnmarshalJSON(data []byte) error {
	if err := requireFields(data, "value", "unit"); err != nil {
		return err
	}
	type plain PlanDuration
	return decodeStrict(data, (*plain)(d))
}
