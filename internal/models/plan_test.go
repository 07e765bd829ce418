package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePlan = `{
  "plan_duration": {"value": 1, "unit": "weeks"},
  "athlete_level": "intermediate",
  "primary_goal": "10k under 45 minutes",
  "plan_notes": "Keep easy days easy.",
  "weeks": [
    {
      "week_number": 1,
      "start_date": "2025-01-06",
      "end_date": "2025-01-12",
      "area_of_focus": "vo2_max_development",
      "total_distance": {"value": 8000, "unit": "meters"},
      "total_time": {"value": 2700, "unit": "seconds"},
      "rest_days": ["2025-01-07"],
      "week_notes": "",
      "workouts": [
        {
          "workout_type": "run",
          "workout_subtype": ["vo2max_intervals", "speed_intervals"],
          "scheduled_date": "2025-01-08",
          "total_distance": {"value": 8000, "unit": "meters"},
          "estimated_duration": {"value": 2700, "unit": "seconds"},
          "terrain": "track",
          "additional_instructions": "Stay relaxed on the straights.",
          "phases": [
            {
              "type": "warmup",
              "duration_type": "time",
              "duration_value": 300,
              "duration_unit": "seconds",
              "intensity": {"effort": "easy", "pace_min": 2.5, "pace_max": 3.0, "perceived_exertion_min": 2, "perceived_exertion_max": 3},
              "notes": "Jog easily."
            },
            {
              "type": "interval_set",
              "repetitions": 2,
              "intervals": [
                {
                  "type": "work",
                  "duration_type": "distance",
                  "duration_value": 400,
                  "duration_unit": "meters",
                  "intensity": {"effort": "hard", "pace_min": 4.0, "pace_max": 4.5, "perceived_exertion_min": 8, "perceived_exertion_max": 9},
                  "notes": "Strong and even."
                },
                {
                  "type": "recovery",
                  "duration_type": "time",
                  "duration_value": 60,
                  "duration_unit": "seconds",
                  "intensity": {"effort": "easy", "pace_min": 1.5, "pace_max": 2.0, "perceived_exertion_min": 1, "perceived_exertion_max": 2},
                  "notes": ""
                }
              ]
            },
            {
              "type": "cooldown",
              "duration_type": "time",
              "duration_value": 300,
              "duration_unit": "seconds",
              "intensity": {"effort": "easy", "pace_min": 2.0, "pace_max": 2.5, "perceived_exertion_min": 1, "perceived_exertion_max": 2},
              "notes": ""
            }
          ]
        }
      ]
    }
  ]
}`

// TestDecodePlanPhases verifies that the phase list is decoded into the
// concrete variant selected by the "type" discriminator, in order.
func TestDecodePlanPhases(t *testing.T) {
	plan, err := DecodePlan(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(plan.Weeks) != 1 || len(plan.Weeks[0].Workouts) != 1 {
		t.Fatalf("unexpected plan shape: %+v", plan)
	}
	w := plan.Weeks[0].Workouts[0]
	if got := w.FirstSubtype(); got != "vo2max_intervals" {
		t.Errorf("FirstSubtype() = %q, want vo2max_intervals", got)
	}
	if len(w.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(w.Phases))
	}

	warmup, ok := w.Phases[0].(SinglePhase)
	if !ok {
		t.Fatalf("phase 0 is %T, want SinglePhase", w.Phases[0])
	}
	if warmup.Kind != PhaseWarmup || warmup.DurationValue != 300 || warmup.Intensity.PaceMax != 3.0 {
		t.Errorf("warmup = %+v", warmup)
	}

	set, ok := w.Phases[1].(IntervalSet)
	if !ok {
		t.Fatalf("phase 1 is %T, want IntervalSet", w.Phases[1])
	}
	if set.Repetitions != 2 || len(set.Intervals) != 2 {
		t.Fatalf("interval set = %+v", set)
	}
	if set.Intervals[0].Kind != IntervalWork || set.Intervals[0].DurationType != DurationDistance {
		t.Errorf("interval 0 = %+v", set.Intervals[0])
	}
	if set.StepCount() != 4 {
		t.Errorf("StepCount() = %d, want 4", set.StepCount())
	}

	if _, ok := w.Phases[2].(SinglePhase); !ok {
		t.Errorf("phase 2 is %T, want SinglePhase", w.Phases[2])
	}
}

// TestDecodePlanRejects verifies the strict input contract: unknown fields,
// missing fields and unknown discriminators are all errors.
func TestDecodePlanRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "unknown plan field",
			mutate:  func(s string) string { return strings.Replace(s, `"athlete_level"`, `"coach": "x", "athlete_level"`, 1) },
			wantErr: "coach",
		},
		{
			name:    "missing plan field",
			mutate:  func(s string) string { return strings.Replace(s, `"plan_notes": "Keep easy days easy.",`, "", 1) },
			wantErr: "plan_notes",
		},
		{
			name:    "unknown phase type",
			mutate:  func(s string) string { return strings.Replace(s, `"type": "cooldown"`, `"type": "strides"`, 1) },
			wantErr: "strides",
		},
		{
			name:    "unknown interval type",
			mutate:  func(s string) string { return strings.Replace(s, `"type": "recovery"`, `"type": "float"`, 1) },
			wantErr: "float",
		},
		{
			name:    "missing duration value",
			mutate:  func(s string) string { return strings.Replace(s, `"duration_value": 60,`, "", 1) },
			wantErr: "duration_value",
		},
		{
			name:    "null duration value",
			mutate:  func(s string) string { return strings.Replace(s, `"duration_value": 60,`, `"duration_value": null,`, 1) },
			wantErr: "duration_value",
		},
		{
			name:    "null perceived exertion",
			mutate:  func(s string) string { return strings.Replace(s, `"perceived_exertion_min": 8,`, `"perceived_exertion_min": null,`, 1) },
			wantErr: "perceived_exertion_min",
		},
		{
			name:    "null repetitions",
			mutate:  func(s string) string { return strings.Replace(s, `"repetitions": 2,`, `"repetitions": null,`, 1) },
			wantErr: "repetitions",
		},
		{
			name:    "missing pace bound",
			mutate:  func(s string) string { return strings.Replace(s, `"pace_min": 2.5, `, "", 1) },
			wantErr: "pace_min",
		},
		{
			name:    "unknown subtype",
			mutate:  func(s string) string { return strings.Replace(s, `"vo2max_intervals"`, `"jogging"`, 1) },
			wantErr: "jogging",
		},
		{
			name:    "unknown area of focus",
			mutate:  func(s string) string { return strings.Replace(s, `"vo2_max_development"`, `"fun"`, 1) },
			wantErr: "fun",
		},
		{
			name:    "extra field on interval set",
			mutate:  func(s string) string { return strings.Replace(s, `"repetitions": 2,`, `"repetitions": 2, "rest": 90,`, 1) },
			wantErr: "rest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlan(strings.NewReader(tt.mutate(samplePlan)))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// TestIntervalSetMarshalType verifies the discriminator survives encoding,
// so a re-encoded plan decodes back to the same variant.
func TestIntervalSetMarshalType(t *testing.T) {
	plan, err := DecodePlan(strings.NewReader(samplePlan))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	again, err := DecodePlan(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if _, ok := again.Weeks[0].Workouts[0].Phases[1].(IntervalSet); !ok {
		t.Errorf("phase 1 is %T after re-encode, want IntervalSet", again.Weeks[0].Workouts[0].Phases[1])
	}
}

// TestLoadPlan verifies reading a plan from disk and the error for a missing file.
func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(samplePlan), 0o644); err != nil {
		t.Fatal(err)
	}
	plan, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if plan.PrimaryGoal != "10k under 45 minutes" {
		t.Errorf("primary_goal = %q", plan.PrimaryGoal)
	}

	if _, err := LoadPlan(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
