/*
scheduler.go - Automated month-end payroll scheduler

PURPOSE:
  Periodically checks whether the previous month has closed without a
  completed payroll run and, if so, computes and stores it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Only looks at the month before "now"; older months are run by hand
  - Skips months that already have a completed run
  - A partial run (some persons failed) is retried on the next check;
    drafts are replaced, final payslips are left alone
  - Payslips are stored as drafts; finalizing is a manual step

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewPayrollScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CreatePayrollRun endpoint (manual runs)
  - store/sqlite/payroll.go: run records and payslips
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
)

// PayrollScheduler runs payroll for the previous month once it closes.
type PayrollScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	// Now is the clock; tests replace it.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPayrollScheduler creates a new scheduler.
func NewPayrollScheduler(handler *Handler) *PayrollScheduler {
	return &PayrollScheduler{
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ps *PayrollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	log := ps.Handler.Logger.Named("scheduler")
	if !ps.Enabled {
		log.Info("disabled, not starting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps.cancel = cancel
	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)

	go ps.run(ctx)

	log.Info("started", zap.Duration("interval", ps.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish or
// observe cancellation.
func (ps *PayrollScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		ps.cancel()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Handler.Logger.Named("scheduler").Info("stopped")
	}
}

func (ps *PayrollScheduler) run(ctx context.Context) {
	defer ps.wg.Done()

	// Run immediately on start
	ps.checkAndProcess(ctx)

	for {
		select {
		case <-ps.ticker.C:
			ps.checkAndProcess(ctx)
		case <-ps.stop:
			return
		}
	}
}

// RunNow triggers an immediate check (for testing/admin). It reports
// whether a run was started.
func (ps *PayrollScheduler) RunNow(ctx context.Context) bool {
	return ps.checkAndProcess(ctx)
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ps *PayrollScheduler) GetNextRunTime() time.Time {
	return ps.Now().Add(ps.CheckInterval)
}

func (ps *PayrollScheduler) checkAndProcess(ctx context.Context) bool {
	log := ps.Handler.Logger.Named("scheduler")
	today := generic.DateOf(ps.Now())
	period := generic.MonthPeriod(today.Year(), today.Month()).PreviousMonth()

	done, err := ps.Handler.Store.IsPeriodComplete(ctx, period)
	if err != nil {
		log.Error("checking run status", zap.Stringer("period", period), zap.Error(err))
		return false
	}
	if done {
		log.Debug("period already complete", zap.Stringer("period", period))
		return false
	}

	log.Info("running payroll", zap.Stringer("period", period))
	_, run, err := ps.Handler.RunPayroll(ctx, period, true, false)
	if err != nil {
		log.Error("payroll run failed", zap.Stringer("period", period), zap.String("run_id", run.ID), zap.Error(err))
		return true
	}
	log.Info("payroll run finished",
		zap.Stringer("period", period),
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
	)
	return true
}
