package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/migration/migrationtest"
	"github.com/smallbiznis/wattwatch/internal/period"
	pricingdomain "github.com/smallbiznis/wattwatch/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/wattwatch/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/wattwatch/internal/pricing/service"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"github.com/smallbiznis/wattwatch/internal/usage/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	homeScope = scopedomain.Resolved{Ref: scopedomain.HomeRef(10), Name: "Home", HomeID: 10, OwnerID: 1}
	heater    = snowflake.ID(20)
)

func newTestService(t *testing.T, now time.Time) (*gorm.DB, usagedomain.Service) {
	t.Helper()
	db := migrationtest.Open(t)
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(now),
		Config: config.Config{Timezone: "UTC"},
		Repo:   repository.Provide(),
		PricingSvc: pricingservice.New(pricingservice.Params{
			Log:  zap.NewNop(),
			Repo: pricingrepo.Provide(db),
		}),
	})
	return db, svc
}

func seedReading(t *testing.T, db *gorm.DB, id int64, device *snowflake.ID, kwh, cost float64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&usagedomain.UsageReading{
		ID:          snowflake.ID(id),
		HomeID:      10,
		DeviceID:    device,
		Consumption: kwh,
		Cost:        cost,
		RecordedAt:  at.UTC(),
	}).Error)
}

func TestAggregateDailyWindow(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	db, svc := newTestService(t, now)

	seedReading(t, db, 1, nil, 10, 1.0, time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)) // yesterday
	seedReading(t, db, 2, nil, 12, 1.2, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))  // window start, inclusive
	seedReading(t, db, 3, &heater, 30, 3.0, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	seedReading(t, db, 4, nil, 5, 0.5, time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC))  // now, inclusive
	seedReading(t, db, 5, nil, 99, 9.9, time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)) // future

	agg, err := svc.Aggregate(context.Background(), homeScope, period.Daily)
	require.NoError(t, err)
	require.Equal(t, 3, agg.SampleCount)
	require.Equal(t, 47.0, agg.TotalConsumption)
	require.Equal(t, 4.7, agg.TotalCost)
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), agg.WindowStart)
	require.Equal(t, now, agg.WindowEnd)
}

func TestAggregateDeviceScope(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	db, svc := newTestService(t, now)

	seedReading(t, db, 1, nil, 12, 1.2, now.Add(-time.Hour))
	seedReading(t, db, 2, &heater, 30, 3.0, now.Add(-2*time.Hour))

	device := scopedomain.Resolved{Ref: scopedomain.DeviceRef(heater), Name: "Heater", HomeID: 10, OwnerID: 1}
	agg, err := svc.Aggregate(context.Background(), device, period.Daily)
	require.NoError(t, err)
	require.Equal(t, 1, agg.SampleCount)
	require.Equal(t, 30.0, agg.TotalConsumption)
}

func TestAggregateEmptyWindowIsZero(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	_, svc := newTestService(t, now)

	agg, err := svc.Aggregate(context.Background(), homeScope, period.Hourly)
	require.NoError(t, err)
	require.Zero(t, agg.SampleCount)
	require.Zero(t, agg.TotalConsumption)
	require.Zero(t, agg.TotalCost)
	require.Equal(t, now.Add(-time.Hour), agg.WindowStart)
}

func TestAggregateUsesPricingModel(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	db, svc := newTestService(t, now)

	limit := 100.0
	model := pricingdomain.NewTiered(10, []pricingdomain.Tier{{Limit: &limit, Rate: 0.10}, {Rate: 0.20}})
	model.ID = 1
	require.NoError(t, db.Create(&model).Error)

	seedReading(t, db, 1, nil, 80, 0, now.Add(-3*time.Hour))
	seedReading(t, db, 2, nil, 40, 0, now.Add(-2*time.Hour))

	agg, err := svc.Aggregate(context.Background(), homeScope, period.Daily)
	require.NoError(t, err)
	require.Equal(t, 120.0, agg.TotalConsumption)
	// 100*0.10 + 20*0.20 on the window total
	require.Equal(t, 14.0, agg.TotalCost)
}

func TestAggregateRejectsUnknownPeriod(t *testing.T) {
	_, svc := newTestService(t, time.Now())
	_, err := svc.Aggregate(context.Background(), homeScope, period.Period("yearly"))
	require.ErrorIs(t, err, period.ErrInvalidPeriod)
}

func TestDailyTotals(t *testing.T) {
	now := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	db, svc := newTestService(t, now)

	seedReading(t, db, 1, nil, 10, 0, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	seedReading(t, db, 2, nil, 5, 0, time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
	seedReading(t, db, 3, nil, 7, 0, time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC))

	totals, err := svc.DailyTotals(context.Background(), homeScope,
		time.Date(2024, 2, 27, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, totals, 2)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), totals[0].Day)
	require.Equal(t, 15.0, totals[0].Consumption)
	require.Equal(t, 2, totals[0].SampleCount)
	require.Equal(t, 7.0, totals[1].Consumption)

	_, err = svc.DailyTotals(context.Background(), homeScope, now, now.Add(-time.Hour))
	require.ErrorIs(t, err, usagedomain.ErrInvalidWindow)
}
