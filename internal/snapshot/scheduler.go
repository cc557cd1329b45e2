package snapshot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"camgrid/internal/platform/metrics"
)

// DefaultInterval is the default time between scheduled runs.
const DefaultInterval = 5 * time.Minute

// Runner executes one pipeline cycle.
type Runner interface {
	Run(ctx context.Context) (RunResult, error)
}

// State is the scheduler's run state. The only transitions are
// Idle -> Running and Running -> Idle.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Scheduler runs the pipeline once at start and then every interval. A
// trigger that arrives while a run is active is skipped, not queued.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	log        *slog.Logger
	metrics    *metrics.Metrics

	state atomic.Int32
	wg    sync.WaitGroup
}

// NewScheduler returns a Scheduler. Each run is bounded by the interval so a
// wedged run cannot live forever. m may be nil.
func NewScheduler(runner Runner, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: interval,
		log:        log,
		metrics:    m,
	}
}

// Start fires one run immediately and then one per interval until ctx is
// done. It returns at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Wait blocks until the loop has exited and any in-flight run has finished.
// Cancel the context passed to Start first.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// State reports whether a run is in progress.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.Trigger(ctx)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Trigger(ctx)
		}
	}
}

// Trigger starts a run in the background unless one is already active. It
// reports whether a run was started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		s.log.Warn("run still in progress, skipping trigger")
		if s.metrics != nil {
			s.metrics.IncRunsSkipped()
		}
		return false
	}
	s.wg.Add(1)
	go s.execute(ctx)
	return true
}

// execute is the run boundary: every error and panic stops here.
func (s *Scheduler) execute(ctx context.Context) {
	defer s.wg.Done()
	defer s.state.Store(int32(StateIdle))
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("run panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if _, err := s.runner.Run(runCtx); err != nil {
		s.log.Error("scheduled run failed", slog.String("error", err.Error()))
	}
}
