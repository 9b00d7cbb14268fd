package payroll

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/warp/payroll-engine/deduction"
	"github.com/warp/payroll-engine/generic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// RUNNER - Batch payroll over a bounded worker pool
// =============================================================================

// PersonFailure is one person whose report could not be computed.
type PersonFailure struct {
	PersonID   generic.PersonID `json:"person_id"`
	PersonName string           `json:"person_name"`
	Reason     string           `json:"reason"`

	Err error `json:"-"`
}

// Result is the outcome of a payroll run.
//
// Reports and Failures follow input order. A canceled run keeps every
// report computed before cancellation; persons never started appear in
// neither list.
type Result struct {
	RunID      string          `json:"run_id"`
	Period     generic.Period  `json:"period"`
	Reports    []*Report       `json:"reports"`
	Failures   []PersonFailure `json:"failures"`
	Canceled   bool            `json:"canceled"`
	Skipped    int             `json:"skipped"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Runner computes many persons' reports concurrently.
type Runner struct {
	Engine  *Engine
	Workers int
	Logger  *zap.Logger
}

// NewRunner returns a runner with one worker per CPU when workers <= 0.
func NewRunner(engine *Engine, workers int, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Engine: engine, Workers: workers, Logger: logger}
}

// Run computes every input for period.
//
// Rules are snapshotted before the first worker starts; workers only read
// the snapshot. One person's error or panic is recorded as a failure and
// does not stop the others. When ctx is canceled no further persons are
// started and Result.Canceled is set. The returned error is only non-nil
// for an invalid period.
func (r *Runner) Run(ctx context.Context, period generic.Period, inputs []Input) (*Result, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	log := r.logger()
	res := &Result{
		RunID:     uuid.NewString(),
		Period:    period,
		Reports:   []*Report{},
		Failures:  []PersonFailure{},
		StartedAt: time.Now(),
	}
	log = log.With(zap.String("run_id", res.RunID), zap.String("period", period.String()))
	log.Info("payroll run started", zap.Int("persons", len(inputs)), zap.Int("workers", r.workers()))

	work := snapshot(period, inputs)
	reports := make([]*Report, len(work))
	failures := make([]*PersonFailure, len(work))
	started := make([]bool, len(work))

	var canceled atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(r.workers())

	for i := range work {
		if ctx.Err() != nil {
			canceled.Store(true)
			break
		}
		i := i
		started[i] = true
		g.Go(func() error {
			if ctx.Err() != nil {
				canceled.Store(true)
				started[i] = false
				return nil
			}
			rep, err := r.computeOne(work[i])
			if err != nil {
				failures[i] = &PersonFailure{
					PersonID:   work[i].Person.ID,
					PersonName: work[i].Person.Name,
					Reason:     err.Error(),
					Err:        err,
				}
				log.Warn("payroll person failed",
					zap.String("person_id", string(work[i].Person.ID)),
					zap.Error(err))
				return nil
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()

	for i := range work {
		switch {
		case reports[i] != nil:
			res.Reports = append(res.Reports, reports[i])
		case failures[i] != nil:
			res.Failures = append(res.Failures, *failures[i])
		case !started[i]:
			res.Skipped++
		}
	}
	res.Canceled = canceled.Load()
	res.FinishedAt = time.Now()

	fields := []zap.Field{
		zap.Int("reports", len(res.Reports)),
		zap.Int("failures", len(res.Failures)),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	if res.Canceled {
		log.Warn("payroll run canceled", fields...)
	} else {
		log.Info("payroll run finished", fields...)
	}
	return res, nil
}

// computeOne turns a panic into an error so one bad input cannot take the
// whole run down.
func (r *Runner) computeOne(in Input) (rep *Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			rep = nil
			err = &generic.PersonError{PersonID: in.Person.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return r.engine().Compute(in)
}

func (r *Runner) engine() *Engine {
	if r.Engine == nil {
		return NewEngine(DefaultOptions())
	}
	return r.Engine
}

func (r *Runner) workers() int {
	if r.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return r.Workers
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// snapshot copies the inputs with the run period and deep-copied rules.
// Inputs that share one rule slice keep sharing one copy.
func snapshot(period generic.Period, inputs []Input) []Input {
	copies := make(map[*deduction.Rule][]deduction.Rule)
	out := make([]Input, len(inputs))
	for i, in := range inputs {
		in.Period = period
		if len(in.Rules) > 0 {
			key := &in.Rules[0]
			rules, ok := copies[key]
			if !ok || len(rules) != len(in.Rules) {
				rules = make([]deduction.Rule, len(in.Rules))
				for j, rule := range in.Rules {
					rules[j] = rule.Clone()
				}
				copies[key] = rules
			}
			in.Rules = rules
		}
		out[i] = in
	}
	return out
}
