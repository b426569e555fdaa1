package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	alertdomain "github.com/smallbiznis/wattwatch/internal/alert/domain"
	anomalydomain "github.com/smallbiznis/wattwatch/internal/anomaly/domain"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/ratelimit"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubAlerts struct {
	alertdomain.Service

	calls    atomic.Int32
	gate     chan struct{}
	listErr  error
	report   alertdomain.BatchReport
	homes    []scopedomain.Resolved
	homesErr error
}

func (s *stubAlerts) EvaluateAll(ctx context.Context) (alertdomain.BatchReport, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.listErr != nil {
		return alertdomain.BatchReport{}, s.listErr
	}
	return s.report, nil
}

func (s *stubAlerts) MonitoredHomes(context.Context) ([]scopedomain.Resolved, error) {
	return s.homes, s.homesErr
}

type stubDetector struct {
	calls      atomic.Int32
	advisories []anomalydomain.Advisory
	err        error
}

func (d *stubDetector) Check(context.Context, scopedomain.Resolved) (*anomalydomain.Advisory, error) {
	return nil, nil
}

func (d *stubDetector) CheckHomes(_ context.Context, homes []scopedomain.Resolved) ([]anomalydomain.Advisory, error) {
	d.calls.Add(1)
	return d.advisories, d.err
}

var lakeHouse = scopedomain.Resolved{Ref: scopedomain.HomeRef(10), Name: "Lake House", HomeID: 10, OwnerID: 1}

func newTestScheduler(t *testing.T, clk clock.Clock, alerts alertdomain.Service, detector anomalydomain.Detector, locker *ratelimit.Locker) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	params := Params{
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Config: Config{Schedule: "@hourly"},
		Alerts: alerts,
		Locker: locker,
	}
	if detector != nil {
		params.Anomaly = detector
	}
	sched, err := New(params)
	require.NoError(t, err)
	return sched
}

func TestRunOnceEvaluatesThenChecksAnomalies(t *testing.T) {
	alerts := &stubAlerts{
		report: alertdomain.BatchReport{
			TotalChecked: 3,
			Triggered:    []alertdomain.TriggeredAlertEvent{{ID: 1}},
			Errors:       []alertdomain.RuleError{{RuleID: 2, Error: "scope_not_found"}},
		},
		homes: []scopedomain.Resolved{lakeHouse},
	}
	detector := &stubDetector{advisories: []anomalydomain.Advisory{{HomeID: 10}}}
	sched := newTestScheduler(t, clock.NewFakeClock(time.Now()), alerts, detector, nil)

	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Equal(t, 3, report.Alerts.TotalChecked)
	require.Len(t, report.Alerts.Triggered, 1)
	require.Len(t, report.Alerts.Errors, 1)
	require.Len(t, report.Advisories, 1)
	require.EqualValues(t, 1, detector.calls.Load())
}

func TestRunOnceListingFailureAbortsTick(t *testing.T) {
	listErr := errors.New("connection refused")
	alerts := &stubAlerts{listErr: listErr}
	detector := &stubDetector{}
	sched := newTestScheduler(t, clock.NewFakeClock(time.Now()), alerts, detector, nil)

	_, err := sched.RunOnce(context.Background())
	require.ErrorIs(t, err, listErr)
	require.Zero(t, detector.calls.Load())

	// the next tick still runs
	alerts.listErr = nil
	_, err = sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, detector.calls.Load())
}

func TestRunOnceAnomalyFailuresAreNotFatal(t *testing.T) {
	alerts := &stubAlerts{homes: []scopedomain.Resolved{lakeHouse}}
	detector := &stubDetector{err: errors.New("usage store unavailable")}
	sched := newTestScheduler(t, clock.NewFakeClock(time.Now()), alerts, detector, nil)

	_, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestRunOnceSkipsWhenLockUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	alerts := &stubAlerts{}
	sched := newTestScheduler(t, clock.NewFakeClock(time.Now()), alerts, nil, ratelimit.NewLocker(client))

	report, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Zero(t, alerts.calls.Load())
}

func TestNewRejectsInvalidSchedule(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.New(),
		Config: Config{Schedule: "every tuesday"},
		Alerts: &stubAlerts{},
	})
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartIsIdempotentAndFiresOnSchedule(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	alerts := &stubAlerts{}
	sched := newTestScheduler(t, clk, alerts, nil, nil)

	sched.Start(context.Background())
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)
	require.True(t, sched.Running())

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	require.Zero(t, alerts.calls.Load())

	clk.Advance(29 * time.Minute)
	require.Zero(t, alerts.calls.Load())

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return alerts.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)

	clk.Advance(time.Hour)
	require.Eventually(t, func() bool { return alerts.calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestOverdueTicksAreSkipped(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	alerts := &stubAlerts{gate: make(chan struct{})}
	sched := newTestScheduler(t, clk, alerts, nil, nil)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return alerts.calls.Load() == 1 }, time.Second, time.Millisecond)

	// the tick overruns three scheduled slots
	clk.Advance(3 * time.Hour)
	alerts.gate <- struct{}{}

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	require.EqualValues(t, 1, alerts.calls.Load())

	clk.Advance(30 * time.Minute)
	require.Eventually(t, func() bool { return alerts.calls.Load() == 2 }, time.Second, time.Millisecond)
	alerts.gate <- struct{}{}
}

func TestStopWaitsForLoopExit(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC))
	sched := newTestScheduler(t, clk, &stubAlerts{}, nil, nil)

	sched.Stop()
	sched.Start(context.Background())
	sched.Stop()
	require.False(t, sched.Running())
	sched.Stop()

	sched.Start(context.Background())
	require.True(t, sched.Running())
	sched.Stop()
}
