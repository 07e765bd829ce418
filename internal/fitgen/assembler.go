package fitgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/claude/planfit/internal/models"
	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"golang.org/x/sync/errgroup"
)

// DefaultSerialNumber is written to file_id when no serial is configured.
const DefaultSerialNumber uint32 = 0x12345678

const defaultWorkers = 4

// Identity is the device identity written to every file_id record.
type Identity struct {
	Manufacturer typedef.Manufacturer
	Product      uint16
	SerialNumber uint32
	Clock        func() time.Time
}

// DefaultIdentity is a development-manufacturer identity using the wall clock.
func DefaultIdentity() Identity {
	return Identity{
		Manufacturer: typedef.ManufacturerDevelopment,
		SerialNumber: DefaultSerialNumber,
		Clock:        time.Now,
	}
}

// Config holds the assembler settings. It is copied at construction.
type Config struct {
	OutputDir       string
	Workers         int
	Identity        Identity
	ProtocolVersion proto.Version
	Schema          TargetSchema
}

// Artifact describes one generated workout file.
type Artifact struct {
	WorkoutID     string `json:"workout_id"`
	WeekNumber    int    `json:"week_number"`
	ScheduledDate string `json:"scheduled_date"`
	Path          string `json:"path"`
	Notes         string `json:"notes"`
	StepCount     int    `json:"step_count"`
}

// Failure describes a workout that was skipped.
type Failure struct {
	WorkoutID     string
	WeekNumber    int
	ScheduledDate string
	Err           error
}

// Result is the outcome of one Generate call.
type Result struct {
	Artifacts map[string]Artifact
	Failures  []Failure
}

// Assembler writes one FIT workout file per plan workout.
type Assembler struct {
	cfg   Config
	steps *StepBuilder
	log   *slog.Logger
}

// New creates an Assembler. Zero-valued config fields take defaults.
func New(cfg Config, log *slog.Logger) *Assembler {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = proto.V2
	}
	if cfg.Schema == nil {
		cfg.Schema = ProfileSchema{Version: cfg.ProtocolVersion}
	}
	if cfg.Identity.Clock == nil {
		cfg.Identity.Clock = time.Now
	}
	if cfg.Identity.Manufacturer == 0 {
		cfg.Identity.Manufacturer = typedef.ManufacturerDevelopment
	}
	return &Assembler{
		cfg:   cfg,
		steps: NewStepBuilder(cfg.Schema, log),
		log:   log,
	}
}

// WorkoutID names a workout within a plan.
func WorkoutID(weekNumber int, w models.Workout) string {
	return fmt.Sprintf("week%d_%s_%s", weekNumber, w.ScheduledDate, w.FirstSubtype())
}

// ExternalID is the upsert key of a workout on the upload target.
func ExternalID(athleteID, workoutID string) string {
	return athleteID + "_" + workoutID
}

// CountSteps returns the number of workout_step records the phases unroll into.
func CountSteps(phases []models.Phase) int {
	n := 0
	for _, p := range phases {
		switch p := p.(type) {
		case models.SinglePhase:
			n++
		case models.IntervalSet:
			n += p.StepCount()
		}
	}
	return n
}

type job struct {
	seq     int
	id      string
	week    int
	workout models.Workout
}

// Generate validates the plan, then writes every workout to OutputDir.
// A validation failure aborts before any file is written. A failing workout
// is logged and listed in Result.Failures while the others continue; that
// includes failing to create OutputDir.
// If ctx is done, workouts not yet started are failed with ctx.Err() and
// that error is returned alongside the partial result.
func (a *Assembler) Generate(ctx context.Context, plan *models.TrainingPlan) (*Result, error) {
	if err := Validate(plan); err != nil {
		return nil, err
	}
	// Workouts sharing an id run on one worker in plan order, so the last
	// one in the plan wins.
	var groups [][]job
	byID := make(map[string]int)
	seq := 0
	for _, week := range plan.Weeks {
		for _, w := range week.Workouts {
			j := job{seq: seq, id: WorkoutID(week.WeekNumber, w), week: week.WeekNumber, workout: w}
			seq++
			if gi, ok := byID[j.id]; ok {
				a.log.Warn("duplicate workout id, later workout overwrites earlier",
					"workout_id", j.id, "week", week.WeekNumber)
				groups[gi] = append(groups[gi], j)
				continue
			}
			byID[j.id] = len(groups)
			groups = append(groups, []job{j})
		}
	}

	type failed struct {
		seq int
		Failure
	}
	res := &Result{Artifacts: make(map[string]Artifact)}
	var failures []failed
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for _, group := range groups {
		g.Go(func() error {
			for _, j := range group {
				art, err := a.generateOne(ctx, j)

				mu.Lock()
				if err != nil {
					failures = append(failures, failed{j.seq, Failure{
						WorkoutID:     j.id,
						WeekNumber:    j.week,
						ScheduledDate: j.workout.ScheduledDate,
						Err:           err,
					}})
				} else {
					res.Artifacts[j.id] = art
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(failures, func(x, y int) bool { return failures[x].seq < failures[y].seq })
	for _, f := range failures {
		res.Failures = append(res.Failures, f.Failure)
	}

	a.log.Info("generation complete",
		"workouts", seq, "generated", len(res.Artifacts), "failed", len(res.Failures))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (a *Assembler) generateOne(ctx context.Context, j job) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	fit, steps, err := a.assemble(j.workout)
	if err != nil {
		a.logFailure(j, err)
		return Artifact{}, err
	}

	path := filepath.Join(a.cfg.OutputDir, j.id+".fit")
	if err := a.write(path, fit); err != nil {
		a.logFailure(j, err)
		return Artifact{}, err
	}

	a.log.Debug("workout file written", "workout_id", j.id, "path", path, "steps", steps)
	return Artifact{
		WorkoutID:     j.id,
		WeekNumber:    j.week,
		ScheduledDate: j.workout.ScheduledDate,
		Path:          path,
		Notes:         CollectNotes(j.workout),
		StepCount:     steps,
	}, nil
}

func (a *Assembler) logFailure(j job, err error) {
	phase := -1
	var se *StepError
	if errors.As(err, &se) {
		phase = se.PhaseIndex
	}
	a.log.Warn("workout skipped",
		"workout_id", j.id, "date", j.workout.ScheduledDate, "phase_index", phase, "error", err)
}

// assemble builds the messages of one workout file:
// file_id, workout, then one workout_step per leaf in order.
func (a *Assembler) assemble(w models.Workout) (*proto.FIT, int, error) {
	total := CountSteps(w.Phases)
	if total >= math.MaxUint16 {
		return nil, 0, fmt.Errorf("%w: %d steps", ErrOutOfRange, total)
	}

	id := a.cfg.Identity
	fileID := mesgdef.NewFileId(nil)
	fileID.Type = typedef.FileWorkout
	fileID.Manufacturer = id.Manufacturer
	fileID.Product = id.Product
	fileID.SerialNumber = id.SerialNumber
	fileID.TimeCreated = id.Clock()

	workout := mesgdef.NewWorkout(nil)
	workout.Sport = typedef.SportRunning
	workout.NumValidSteps = uint16(total)

	fit := &proto.FIT{Messages: make([]proto.Message, 0, total+2)}
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil), workout.ToMesg(nil))

	emit := func(leaf models.Leaf, ref StepRef) error {
		step, err := a.steps.Build(leaf, ref)
		if err != nil {
			return err
		}
		step.MessageIndex = typedef.MessageIndex(len(fit.Messages) - 2)
		fit.Messages = append(fit.Messages, step.ToMesg(nil))
		return nil
	}

	for i, p := range w.Phases {
		switch p := p.(type) {
		case models.SinglePhase:
			ref := StepRef{Date: w.ScheduledDate, Kind: p.Kind, PhaseIndex: i, IntervalIndex: -1}
			if err := emit(p, ref); err != nil {
				return nil, 0, err
			}
		case models.IntervalSet:
			for rep := 0; rep < p.Repetitions; rep++ {
				for k, iv := range p.Intervals {
					ref := StepRef{Date: w.ScheduledDate, Kind: iv.Kind, PhaseIndex: i, IntervalIndex: k}
					if err := emit(iv, ref); err != nil {
						return nil, 0, err
					}
				}
			}
		default:
			return nil, 0, &StepError{
				StepRef: StepRef{Date: w.ScheduledDate, PhaseIndex: i, IntervalIndex: -1},
				Err:     fmt.Errorf("%w: %T", ErrUnsupportedPhaseVariant, p),
			}
		}
	}

	if steps := len(fit.Messages) - 2; steps != total {
		return nil, 0, fmt.Errorf("emitted %d steps, workout declares %d", steps, total)
	}
	return fit, total, nil
}

// write encodes fit in memory, then replaces path through a temp file in
// the same directory.
func (a *Assembler) write(path string, fit *proto.FIT) (err error) {
	var buf bytes.Buffer
	enc := encoder.New(&buf, encoder.WithProtocolVersion(a.cfg.ProtocolVersion))
	if err := enc.Encode(fit); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}
