package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/alert/repository"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/migration/migrationtest"
	"github.com/smallbiznis/wattwatch/internal/notification"
	notificationmock "github.com/smallbiznis/wattwatch/internal/notification/mock"
	"github.com/smallbiznis/wattwatch/internal/period"
	pricingrepo "github.com/smallbiznis/wattwatch/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/wattwatch/internal/pricing/service"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	scoperepo "github.com/smallbiznis/wattwatch/internal/scope/repository"
	scopeservice "github.com/smallbiznis/wattwatch/internal/scope/service"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	usagerepo "github.com/smallbiznis/wattwatch/internal/usage/repository"
	usageservice "github.com/smallbiznis/wattwatch/internal/usage/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ownerID = snowflake.ID(1)
	homeID  = snowflake.ID(10)
)

type fixture struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	svc     *Service
	repo    domain.Repository
	readSeq int64
}

type fixtureOption func(*Params)

func withRepo(repo domain.Repository) fixtureOption {
	return func(p *Params) { p.Repo = repo }
}

func withPublisher(pub notification.Publisher) fixtureOption {
	return func(p *Params) { p.Publisher = pub }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db := migrationtest.Open(t)
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{Timezone: "UTC"}
	engine := config.DefaultEngineConfig()
	engine.MaxParallel = 2

	usage := usageservice.NewService(usageservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clk,
		Config: cfg,
		Repo:   usagerepo.Provide(),
		PricingSvc: pricingservice.New(pricingservice.Params{
			Log:  zap.NewNop(),
			Repo: pricingrepo.Provide(db),
		}),
	})

	params := Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Config: cfg,
		Engine: config.NewStaticEngineConfigHolder(engine),
		Repo:   repository.Provide(),
		Scopes: scopeservice.New(scopeservice.Params{Log: zap.NewNop(), Repo: scoperepo.Provide(db)}),
		Usage:  usage,
	}
	for _, opt := range opts {
		opt(&params)
	}

	svc := New(params).(*Service)
	svc.retryInitial = time.Millisecond

	require.NoError(t, db.Create(&scopedomain.Home{ID: homeID, OwnerID: ownerID, Name: "Lake House"}).Error)
	require.NoError(t, db.Create(&scopedomain.Device{ID: 20, HomeID: homeID, Name: "Heat Pump"}).Error)

	return &fixture{db: db, clock: clk, svc: svc, repo: params.Repo}
}

func (f *fixture) addUsage(t *testing.T, kwh float64, at time.Time) {
	t.Helper()
	f.readSeq++
	require.NoError(t, f.db.Create(&usagedomain.UsageReading{
		ID:          snowflake.ID(1000 + f.readSeq),
		HomeID:      homeID,
		Consumption: kwh,
		Cost:        kwh * 0.2,
		RecordedAt:  at.UTC(),
	}).Error)
}

func (f *fixture) createDailyRule(t *testing.T, limitKWh, threshold float64) domain.AlertRule {
	t.Helper()
	rule, err := f.svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		OwnerID:   ownerID,
		Name:      "Daily budget",
		Scope:     scopedomain.HomeRef(homeID),
		Limit:     domain.ConsumptionLimit(limitKWh),
		Period:    period.Daily,
		Threshold: threshold,
		Channels:  []string{"push"},
	})
	require.NoError(t, err)
	return rule
}

func (f *fixture) countEvents(t *testing.T, ruleID snowflake.ID) int64 {
	t.Helper()
	count, err := f.repo.CountEvents(context.Background(), f.db, ruleID)
	require.NoError(t, err)
	return count
}

func TestEvaluateOneTriggersThenDeduplicates(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 42, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, domain.SeverityMedium, event.Severity)
	require.Equal(t, 84.0, event.PercentageUsed)
	require.Equal(t, 42.0, event.CurrentValue)
	require.Equal(t, 50.0, event.LimitValue)
	require.Equal(t, "Lake House", event.ScopeName)
	require.Equal(t, "2024-03-05", event.DedupKey)
	require.Contains(t, event.Message, "Daily budget")
	require.Contains(t, event.Message, "42.00 kWh")
	require.Contains(t, event.Message, "50.00 kWh")
	require.Contains(t, event.Message, "daily")

	again, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, again)
	require.EqualValues(t, 1, f.countEvents(t, rule.ID))

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TriggerCount)
	require.NotNil(t, stored.LastTriggeredAt)
}

func TestEvaluateOneCrossingThresholdWithinWindow(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 35, f.clock.Now().Add(-2*time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, event)

	f.clock.Advance(30 * time.Minute)
	f.addUsage(t, 12.5, f.clock.Now().Add(-time.Minute))

	event, err = f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, 95.0, event.PercentageUsed)
	require.Equal(t, domain.SeverityHigh, event.Severity)

	f.clock.Advance(30 * time.Minute)
	f.addUsage(t, 10, f.clock.Now().Add(-time.Minute))

	event, err = f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, event)
	require.EqualValues(t, 1, f.countEvents(t, rule.ID))
}

func TestEvaluateOneNextWindowTriggersAgain(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	first, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, first)

	f.clock.Advance(24 * time.Hour)
	f.addUsage(t, 48, f.clock.Now().Add(-time.Hour))

	second, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, "2024-03-06", second.DedupKey)
	require.EqualValues(t, 2, f.countEvents(t, rule.ID))
}

func TestEvaluateOneUsesDefaultThresholdWhenUnset(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 100, 0)
	f.addUsage(t, 79, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, event)

	f.addUsage(t, 1, f.clock.Now().Add(-time.Minute))
	event, err = f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, domain.SeverityMedium, event.Severity)
}

func TestEvaluateOneRejectsDisabledAndInactive(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)

	disabled := rule
	disabled.Enabled = false
	_, err := f.svc.EvaluateOne(context.Background(), disabled)
	require.ErrorIs(t, err, domain.ErrRuleDisabled)

	require.NoError(t, f.svc.DeactivateRule(context.Background(), rule.ID))
	_, err = f.svc.EvaluateRule(context.Background(), rule.ID)
	require.ErrorIs(t, err, domain.ErrRuleInactive)
}

func TestEvaluateOneCostLimit(t *testing.T) {
	f := newFixture(t)
	rule, err := f.svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		OwnerID:   ownerID,
		Name:      "Spend cap",
		Scope:     scopedomain.HomeRef(homeID),
		Limit:     domain.CostLimit(10),
		Period:    period.Daily,
		Threshold: 90,
	})
	require.NoError(t, err)
	// 50 kWh at the stored 0.2 per kWh
	f.addUsage(t, 50, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, 100.0, event.PercentageUsed)
	require.Equal(t, domain.SeverityCritical, event.Severity)
	require.Contains(t, event.Message, "used 10.00 of its 10.00 daily limit")
}

func TestTestEvaluateHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 42, f.clock.Now().Add(-time.Hour))

	rule.Enabled = false
	for i := 0; i < 5; i++ {
		result, err := f.svc.TestEvaluate(context.Background(), rule)
		require.NoError(t, err)
		require.True(t, result.WouldTrigger)
		require.False(t, result.AlreadyTriggered)
		require.Equal(t, 84.0, result.PercentageUsed)
		require.Equal(t, domain.SeverityMedium, result.Severity)
		require.NotEmpty(t, result.Message)
	}

	require.Zero(t, f.countEvents(t, rule.ID))
	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.Zero(t, stored.TriggerCount)
	require.Nil(t, stored.LastTriggeredAt)
}

func TestTestEvaluateAgreesWithEvaluateOneAfterTrigger(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 42, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)

	again, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, again)

	result, err := f.svc.TestEvaluate(context.Background(), rule)
	require.NoError(t, err)
	require.False(t, result.WouldTrigger)
	require.True(t, result.AlreadyTriggered)
	require.Equal(t, 84.0, result.PercentageUsed)
	require.EqualValues(t, 1, f.countEvents(t, rule.ID))
}

func TestTestEvaluateFailsClosedWhenDedupCheckFails(t *testing.T) {
	f := newFixture(t, withRepo(&flakyRepo{Repository: repository.Provide(), alwaysErr: true}))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 42, f.clock.Now().Add(-time.Hour))

	_, err := f.svc.TestEvaluate(context.Background(), rule)
	require.ErrorIs(t, err, domain.ErrDedupUnconfirmed)
}

func TestEvaluateOneSeverityBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		usage    float64
		severity domain.Severity
	}{
		{name: "just_below_threshold", usage: 79.9},
		{name: "at_threshold", usage: 80, severity: domain.SeverityMedium},
		{name: "high", usage: 90, severity: domain.SeverityHigh},
		{name: "at_limit", usage: 100, severity: domain.SeverityCritical},
		{name: "over_limit", usage: 150, severity: domain.SeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rule := f.createDailyRule(t, 100, 80)
			f.addUsage(t, tc.usage, f.clock.Now().Add(-time.Hour))

			event, err := f.svc.EvaluateOne(context.Background(), rule)
			require.NoError(t, err)
			if tc.severity == "" {
				require.Nil(t, event)
				require.Zero(t, f.countEvents(t, rule.ID))
				return
			}
			require.NotNil(t, event)
			require.Equal(t, tc.severity, event.Severity)
			require.Equal(t, tc.usage, event.PercentageUsed)
		})
	}
}

func TestEvaluateOneComparesUnroundedPercentage(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 100, 80)
	f.addUsage(t, 79.996, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, event)

	result, err := f.svc.TestEvaluate(context.Background(), rule)
	require.NoError(t, err)
	require.False(t, result.WouldTrigger)
	require.Equal(t, 80.0, result.PercentageUsed)
}

func TestTestEvaluateBelowThreshold(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 10, f.clock.Now().Add(-time.Hour))

	result, err := f.svc.TestEvaluateRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.False(t, result.WouldTrigger)
	require.Equal(t, 20.0, result.PercentageUsed)
	require.Empty(t, result.Severity)
	require.Empty(t, result.Message)
}

func TestEvaluateAllContinuesPastFailingRule(t *testing.T) {
	f := newFixture(t)
	good := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	orphan := good
	orphan.ID = 999
	orphan.ScopeID = 404
	require.NoError(t, f.db.Create(&orphan).Error)

	report, err := f.svc.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.TotalChecked)
	require.Len(t, report.Triggered, 1)
	require.Equal(t, good.ID, report.Triggered[0].RuleID)
	require.Len(t, report.Errors, 1)
	require.Equal(t, orphan.ID, report.Errors[0].RuleID)
	require.ErrorIs(t, report.Err(), scopedomain.ErrNotFound)
	require.Equal(t, f.clock.Now(), report.Timestamp)
}

func TestEvaluateAllSkipsDisabledRules(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	disabled := false
	_, err := f.svc.UpdateRule(context.Background(), rule.ID, domain.UpdateRuleRequest{Enabled: &disabled})
	require.NoError(t, err)

	report, err := f.svc.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.TotalChecked)
	require.Empty(t, report.Triggered)
}

type flakyRepo struct {
	domain.Repository
	failures  int
	calls     int
	alwaysErr bool
	neverSeen bool
}

func (r *flakyRepo) HasEventSince(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, since time.Time) (bool, error) {
	r.calls++
	if r.alwaysErr || r.calls <= r.failures {
		return false, errors.New("connection reset")
	}
	if r.neverSeen {
		return false, nil
	}
	return r.Repository.HasEventSince(ctx, db, ruleID, since)
}

func TestTriggerFailsClosedWhenDedupCheckFails(t *testing.T) {
	repo := &flakyRepo{Repository: repository.Provide(), alwaysErr: true}
	f := newFixture(t, withRepo(repo))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.ErrorIs(t, err, domain.ErrDedupUnconfirmed)
	require.Nil(t, event)
	require.Equal(t, config.DefaultEngineConfig().RetryAttempts, repo.calls)
	require.Zero(t, f.countEvents(t, rule.ID))
}

func TestTriggerRetriesTransientFailure(t *testing.T) {
	repo := &flakyRepo{Repository: repository.Provide(), failures: 1}
	f := newFixture(t, withRepo(repo))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, 2, repo.calls)
}

func TestTriggerTreatsDuplicateBucketAsDedup(t *testing.T) {
	repo := &flakyRepo{Repository: repository.Provide(), neverSeen: true}
	f := newFixture(t, withRepo(repo))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	first, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.Nil(t, second)
	require.EqualValues(t, 1, f.countEvents(t, rule.ID))

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TriggerCount)
}

func TestTriggeredAlertIsPublished(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := notificationmock.NewMockPublisher(ctrl)
	pub.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notification.Message) error {
			require.Equal(t, notification.TypeAlertTriggered, msg.Type)
			require.Equal(t, ownerID.String(), msg.OwnerID)
			require.Equal(t, []string{"push"}, msg.Channels)
			return nil
		}).
		Times(1)

	f := newFixture(t, withPublisher(pub))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	_, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	_, err = f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
}

func TestPublishFailureDoesNotFailEvaluation(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := notificationmock.NewMockPublisher(ctrl)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	f := newFixture(t, withPublisher(pub))
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now().Add(-time.Hour))

	event, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)
	require.NotNil(t, event)
}

func TestMonitoredHomesDeduplicatesDevices(t *testing.T) {
	f := newFixture(t)
	f.createDailyRule(t, 50, 80)
	_, err := f.svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		OwnerID: ownerID,
		Name:    "Heat pump",
		Scope:   scopedomain.DeviceRef(20),
		Limit:   domain.ConsumptionLimit(10),
		Period:  period.Hourly,
	})
	require.NoError(t, err)

	homes, err := f.svc.MonitoredHomes(context.Background())
	require.NoError(t, err)
	require.Len(t, homes, 1)
	require.Equal(t, homeID, homes[0].HomeID)
	require.Equal(t, "Lake House", homes[0].Name)
	require.False(t, homes[0].Ref.IsDevice())
}
