package fitgen

import (
	"errors"
	"fmt"

	"github.com/claude/planfit/internal/models"
)

// ErrStructural matches every plan validation error via errors.Is.
var ErrStructural = errors.New("invalid plan structure")

// ErrEmptyPlan is returned for a plan without weeks.
var ErrEmptyPlan = fmt.Errorf("%w: training plan has no weeks", ErrStructural)

// EmptyWeekError is returned for a week without workouts.
type EmptyWeekError struct {
	WeekNumber int
}

func (e *EmptyWeekError) Error() string {
	return fmt.Sprintf("week %d has no workouts", e.WeekNumber)
}

func (e *EmptyWeekError) Is(target error) bool { return target == ErrStructural }

// EmptyWorkoutError is returned for a workout without phases.
type EmptyWorkoutError struct {
	Date string
}

func (e *EmptyWorkoutError) Error() string {
	return fmt.Sprintf("workout on %s has no phases", e.Date)
}

func (e *EmptyWorkoutError) Is(target error) bool { return target == ErrStructural }

// MissingSubtypeError is returned for a workout without a subtype, which
// leaves it without a workout ID.
type MissingSubtypeError struct {
	Date string
}

func (e *MissingSubtypeError) Error() string {
	return fmt.Sprintf("workout on %s has no workout_subtype", e.Date)
}

func (e *MissingSubtypeError) Is(target error) bool { return target == ErrStructural }

// EmptyIntervalSetError is returned for an interval set that unrolls into
// no steps.
type EmptyIntervalSetError struct {
	Date        string
	PhaseIndex  int
	Repetitions int
	Intervals   int
}

func (e *EmptyIntervalSetError) Error() string {
	return fmt.Sprintf("workout on %s: interval set at phase %d has %d repetitions of %d intervals",
		e.Date, e.PhaseIndex, e.Repetitions, e.Intervals)
}

func (e *EmptyIntervalSetError) Is(target error) bool { return target == ErrStructural }

// Validate checks the plan's structure before anything is encoded.
func Validate(plan *models.TrainingPlan) error {
	if plan == nil || len(plan.Weeks) == 0 {
		return ErrEmptyPlan
	}
	for _, week := range plan.Weeks {
		if len(week.Workouts) == 0 {
			return &EmptyWeekError{WeekNumber: week.WeekNumber}
		}
		for _, w := range week.Workouts {
			if len(w.Phases) == 0 {
				return &EmptyWorkoutError{Date: w.ScheduledDate}
			}
			if w.FirstSubtype() == "" {
				return &MissingSubtypeError{Date: w.ScheduledDate}
			}
			for i, p := range w.Phases {
				set, ok := p.(models.IntervalSet)
				if ok && (set.Repetitions < 1 || len(set.Intervals) == 0) {
					return &EmptyIntervalSetError{
						Date:        w.ScheduledDate,
						PhaseIndex:  i,
						Repetitions: set.Repetitions,
						Intervals:   len(set.Intervals),
					}
				}
			}
		}
	}
	return nil
}
