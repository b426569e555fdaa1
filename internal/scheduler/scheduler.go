package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	alertdomain "github.com/smallbiznis/wattwatch/internal/alert/domain"
	anomalydomain "github.com/smallbiznis/wattwatch/internal/anomaly/domain"
	"github.com/smallbiznis/wattwatch/internal/clock"
	obsmetrics "github.com/smallbiznis/wattwatch/internal/observability/metrics"
	"github.com/smallbiznis/wattwatch/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobEvaluateRules = "evaluate_rules"
	jobAnomalyCheck  = "anomaly_check"
)

var (
	ErrInvalidConfig   = errors.New("invalid_scheduler_config")
	ErrInvalidSchedule = errors.New("invalid_schedule")
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  Config `optional:"true"`
	Alerts  alertdomain.Service
	Anomaly anomalydomain.Detector `optional:"true"`
	Locker  *ratelimit.Locker      `optional:"true"`
}

// TickReport summarizes one scheduled run.
type TickReport struct {
	Skipped    bool
	Alerts     alertdomain.BatchReport
	Advisories []anomalydomain.Advisory
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	schedule cron.Schedule
	alerts   alertdomain.Service
	anomaly  anomalydomain.Detector
	locker   *ratelimit.Locker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Alerts == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, cfg.Schedule, err)
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      cfg,
		genID:    p.GenID,
		clock:    p.Clock,
		schedule: schedule,
		alerts:   p.Alerts,
		anomaly:  p.Anomaly,
		locker:   p.Locker,
	}, nil
}

// Start launches the tick loop. Calling it while the loop runs is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(runCtx, done)

	s.log.Info("scheduler started", zap.String("schedule", s.cfg.Schedule))
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// loop computes the next fire time after each run, so a tick that overruns its slot
// drops the missed fires instead of queueing them.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	schedMetrics := obsmetrics.Scheduler()

	for {
		now := s.clock.Now()
		next := s.schedule.Next(now)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}

		if lag := s.clock.Now().Sub(next); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}

// RunOnce performs a single tick: lock, evaluate every enabled rule, then the anomaly check.
// A failure to list rules aborts the tick and is returned; per-rule failures are in the report.
func (s *Scheduler) RunOnce(ctx context.Context) (TickReport, error) {
	var report TickReport

	release, ok := s.acquireTickLock(ctx)
	if !ok {
		report.Skipped = true
		return report, nil
	}
	defer release()

	err := s.runJob(ctx, jobEvaluateRules, s.cfg.EvaluateTimeout, func(ctx context.Context) error {
		batch, err := s.alerts.EvaluateAll(ctx)
		if err != nil {
			return err
		}
		report.Alerts = batch

		run := jobRunFromContext(ctx)
		run.AddProcessed(batch.TotalChecked)
		run.AddErrors(len(batch.Errors))
		obsmetrics.Scheduler().AddRuleOutcomes(batch.TotalChecked, len(batch.Triggered), len(batch.Errors))
		return nil
	})
	if err != nil {
		return report, err
	}

	if s.anomaly == nil {
		return report, nil
	}
	err = s.runJob(ctx, jobAnomalyCheck, s.cfg.AnomalyTimeout, func(ctx context.Context) error {
		homes, err := s.alerts.MonitoredHomes(ctx)
		if err != nil {
			return err
		}
		advisories, err := s.anomaly.CheckHomes(ctx, homes)
		report.Advisories = advisories

		run := jobRunFromContext(ctx)
		run.AddProcessed(len(homes))
		if err != nil {
			s.logSchedulerError(ctx, run, "anomaly check incomplete", jobAnomalyCheck, err)
		}
		return nil
	})
	return report, err
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler job failed", name, err)
	}
	if owner {
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// acquireTickLock takes the cross-instance tick lease when redis is configured.
// Without redis the unique bucket index is the only guard, and the tick always runs.
func (s *Scheduler) acquireTickLock(ctx context.Context) (func(), bool) {
	if s.locker == nil {
		return func() {}, true
	}

	lease, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		obsmetrics.Scheduler().IncTickSkipped(obsmetrics.SchedulerTickSkippedLockHeld)
		s.log.Info("scheduler tick skipped, lock held elsewhere", zap.String("lock_key", s.cfg.LockKey))
		return nil, false
	}
	if err != nil {
		obsmetrics.Scheduler().IncTickSkipped(obsmetrics.SchedulerTickSkippedLockErr)
		s.logSchedulerError(ctx, nil, "scheduler tick lock failed", jobEvaluateRules, err)
		return nil, false
	}

	return func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("scheduler tick lock release failed", zap.String("lock_key", lease.Key()), zap.Error(err))
		}
	}, true
}
