package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/period"
	pricingdomain "github.com/smallbiznis/wattwatch/internal/pricing/domain"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const amountPlaces = 4

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Config     config.Config
	Repo       usagedomain.Repository
	PricingSvc pricingdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	loc        *time.Location
	repo       usagedomain.Repository
	pricingSvc pricingdomain.Service
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.aggregator"),
		clock:      p.Clock,
		loc:        p.Config.Location(),
		repo:       p.Repo,
		pricingSvc: p.PricingSvc,
	}
}

func (s *Service) Aggregate(ctx context.Context, scope scopedomain.Resolved, p period.Period) (usagedomain.Aggregate, error) {
	return s.AggregateAt(ctx, scope, p, s.clock.Now())
}

// AggregateAt totals the scope over the period window ending at now. It never writes.
func (s *Service) AggregateAt(ctx context.Context, scope scopedomain.Resolved, p period.Period, now time.Time) (usagedomain.Aggregate, error) {
	now = now.In(s.loc)
	start, err := period.WindowStart(p, now)
	if err != nil {
		return usagedomain.Aggregate{}, err
	}

	readings, err := s.repo.ListWindow(ctx, s.db, scope.Ref, start, now)
	if err != nil {
		return usagedomain.Aggregate{}, fmt.Errorf("list readings: %w", err)
	}

	agg := usagedomain.Aggregate{
		SampleCount: len(readings),
		WindowStart: start,
		WindowEnd:   now,
	}
	if len(readings) == 0 {
		return agg, nil
	}

	consumption := decimal.Zero
	storedCost := decimal.Zero
	samples := make([]pricingdomain.Sample, 0, len(readings))
	for _, reading := range readings {
		consumption = consumption.Add(decimal.NewFromFloat(reading.Consumption))
		storedCost = storedCost.Add(decimal.NewFromFloat(reading.Cost))
		samples = append(samples, pricingdomain.Sample{Consumption: reading.Consumption, At: reading.RecordedAt})
	}
	agg.TotalConsumption = consumption.Round(amountPlaces).InexactFloat64()

	cost, err := s.windowCost(ctx, scope, samples, storedCost)
	if err != nil {
		return usagedomain.Aggregate{}, err
	}
	agg.TotalCost = cost.Round(amountPlaces).InexactFloat64()
	return agg, nil
}

func (s *Service) windowCost(ctx context.Context, scope scopedomain.Resolved, samples []pricingdomain.Sample, storedCost decimal.Decimal) (decimal.Decimal, error) {
	if s.pricingSvc == nil || scope.HomeID == 0 {
		return storedCost, nil
	}
	model, err := s.pricingSvc.ModelForHome(ctx, scope.HomeID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load pricing model: %w", err)
	}
	if model == nil {
		return storedCost, nil
	}
	return s.pricingSvc.WindowCost(*model, samples, s.loc)
}

// DailyTotals buckets readings in [from, to] by local calendar day. Days without data are omitted.
func (s *Service) DailyTotals(ctx context.Context, scope scopedomain.Resolved, from, to time.Time) ([]usagedomain.DailyTotal, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s after %s", usagedomain.ErrInvalidWindow, from, to)
	}

	readings, err := s.repo.ListWindow(ctx, s.db, scope.Ref, from, to)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	var (
		totals []usagedomain.DailyTotal
		sums   []decimal.Decimal
		index  = make(map[time.Time]int)
	)
	for _, reading := range readings {
		day := period.StartOfDay(reading.RecordedAt.In(s.loc))
		i, ok := index[day]
		if !ok {
			i = len(totals)
			index[day] = i
			totals = append(totals, usagedomain.DailyTotal{Day: day})
			sums = append(sums, decimal.Zero)
		}
		sums[i] = sums[i].Add(decimal.NewFromFloat(reading.Consumption))
		totals[i].SampleCount++
	}
	for i := range totals {
		totals[i].Consumption = sums[i].Round(amountPlaces).InexactFloat64()
	}
	return totals, nil
}
