package worker

import (
	"connbench/benchmark"
	"connbench/util"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	zlog "github.com/rs/zerolog/log"
)

// How many times each scenario is invoked. Loaded inline from the benchmark config.
type Policy struct {
	Warmup     int `yaml:"warmup"`     // untimed invocations
	Iterations int `yaml:"iterations"` // timed invocations
}

func DefaultPolicy() Policy {
	return Policy{Warmup: 5, Iterations: 50}
}

func (p Policy) Validate() error {
	if p.Warmup < 0 {
		return fmt.Errorf("warmup must not be negative, got %d", p.Warmup)
	}
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	return nil
}

type Metric struct {
	Rts           []float64 // response times (seconds) of the timed invocations that completed
	TotalRt       float64   // sum of Rts
	CompleteCount int       // number of completed timed invocations
	AbortCount    int       // number of failed invocations, warm-up included
	WarmupCount   int       // number of completed warm-up invocations
	Err           error     // first failure
}

type Result struct {
	Scenario     benchmark.Scenario
	Metric       *Metric
	RealDuration float64 // seconds spent in the timed invocations
	TeardownErr  error   // fixture teardown that ran after this scenario, if it failed
}

func (r *Result) Failed() bool {
	return r.Metric.Err != nil
}

// Runs scenarios one after the other, never concurrently
type Worker struct {
	policy   Policy
	progress io.Writer
}

func NewWorker(policy Policy) *Worker {
	return &Worker{policy: policy}
}

// Shows a progress bar over the timed invocations of each scenario
func (w *Worker) SetProgress(out io.Writer) {
	w.progress = out
}

func (w *Worker) setState(s *benchmark.Scenario, state State) {
	zlog.Debug().Str("scenario", s.Name).Stringer("state", state).Msg("state")
}

func (w *Worker) logOperation(s *benchmark.Scenario, rt float64, err error) {
	var msg string
	if err == nil {
		msg = "completed"
	} else {
		msg = "aborted"
	}

	zlog.Debug().Str("scenario", s.Name).Float64("rt", rt).Time("real_time", time.Now()).Msg(msg)
}

// Runs every scenario and returns one result per scenario, in order. Each fixture is set up
// right before the first scenario declaring it and torn down right after the last one.
// Failures are recorded in the results; they never stop the remaining scenarios.
func (w *Worker) Run(ctx context.Context, scenarios []benchmark.Scenario) []*Result {
	last := map[benchmark.Fixture]int{}
	for i, s := range scenarios {
		if s.Fixture != nil {
			last[s.Fixture] = i
		}
	}

	setupErrs := map[benchmark.Fixture]error{}
	results := []*Result{}

	for i := range scenarios {
		s := &scenarios[i]
		result := &Result{Scenario: *s, Metric: &Metric{}}
		results = append(results, result)
		w.setState(s, NotStarted)

		if s.Fixture != nil {
			err, done := setupErrs[s.Fixture]
			if !done {
				w.setState(s, Setup)
				err = s.Fixture.Setup(ctx)
				if err != nil && !errors.Is(err, benchmark.ErrSetup) {
					err = fmt.Errorf("%w: %w", benchmark.ErrSetup, err)
				}
				setupErrs[s.Fixture] = err
				if err != nil {
					zlog.Error().Err(err).Str("scenario", s.Name).Msg("Setup failed")
				}
			}

			if err != nil {
				w.abort(result, err)
			} else {
				w.measure(ctx, s, result)
			}

			if last[s.Fixture] == i {
				w.setState(s, TearingDown)
				if err := s.Fixture.Teardown(); err != nil {
					zlog.Error().Err(err).Str("scenario", s.Name).Msg("Teardown failed")
					result.TeardownErr = err
				}
			}
		} else {
			w.measure(ctx, s, result)
		}

		w.setState(s, Done)
	}

	return results
}

func (w *Worker) abort(result *Result, err error) {
	result.Metric.AbortCount++
	if result.Metric.Err == nil {
		result.Metric.Err = err
	}
	zlog.Error().Err(err).Str("scenario", result.Scenario.Name).Msg("Scenario failed")
}

// Warm-up followed by the timed invocations; stops at the first failure
func (w *Worker) measure(ctx context.Context, s *benchmark.Scenario, result *Result) {
	metric := result.Metric

	w.setState(s, WarmingUp)
	for i := 0; i < w.policy.Warmup; i++ {
		if err := invoke(ctx, s); err != nil {
			w.abort(result, err)
			return
		}
		metric.WarmupCount++
	}

	w.setState(s, Measuring)
	bar := w.startProgress(s)
	defer finishProgress(bar)

	start := time.Now()
	defer func() { result.RealDuration = util.SecondsSince(start) }()

	for i := 0; i < w.policy.Iterations; i++ {
		txStart := time.Now()
		err := invoke(ctx, s)
		rt := util.SecondsSince(txStart)
		w.logOperation(s, rt, err)

		if err != nil {
			w.abort(result, err)
			return
		}

		metric.CompleteCount++
		metric.Rts = append(metric.Rts, rt)
		metric.TotalRt += rt
		if bar != nil {
			bar.Increment()
		}
	}
}

func invoke(ctx context.Context, s *benchmark.Scenario) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Op(ctx)
}

func (w *Worker) startProgress(s *benchmark.Scenario) *pb.ProgressBar {
	if w.progress == nil {
		return nil
	}
	return pb.New(w.policy.Iterations).
		SetWriter(w.progress).
		Set("prefix", s.Name+" ").
		Start()
}

func finishProgress(bar *pb.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}
