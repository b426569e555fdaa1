package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/wattwatch/internal/anomaly/domain"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/notification"
	obsmetrics "github.com/smallbiznis/wattwatch/internal/observability/metrics"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Engine    *config.EngineConfigHolder
	Usage     usagedomain.Service
	Publisher notification.Publisher `optional:"true"`
	Metrics   *obsmetrics.Metrics    `optional:"true"`
}

type Detector struct {
	log       *zap.Logger
	clock     clock.Clock
	loc       *time.Location
	engine    *config.EngineConfigHolder
	usage     usagedomain.Service
	publisher notification.Publisher
	metrics   *obsmetrics.Metrics

	mu      sync.Mutex
	advised map[snowflake.ID]time.Time
}

func New(p Params) domain.Detector {
	publisher := p.Publisher
	if publisher == nil {
		publisher = notification.NewNopPublisher()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Detector{
		log:       p.Log.Named("anomaly.detector"),
		clock:     clk,
		loc:       p.Config.Location(),
		engine:    p.Engine,
		usage:     p.Usage,
		publisher: publisher,
		metrics:   p.Metrics,
		advised:   make(map[snowflake.ID]time.Time),
	}
}

func (d *Detector) CheckHomes(ctx context.Context, homes []scopedomain.Resolved) ([]domain.Advisory, error) {
	advisories := make([]domain.Advisory, 0)
	var errs []error
	for _, home := range homes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		advisory, err := d.Check(ctx, home)
		if err != nil {
			errs = append(errs, fmt.Errorf("home %s: %w", home.Ref.ID, err))
			continue
		}
		if advisory != nil {
			advisories = append(advisories, *advisory)
		}
	}
	return advisories, errors.Join(errs...)
}

func (d *Detector) Check(ctx context.Context, home scopedomain.Resolved) (*domain.Advisory, error) {
	if home.Ref.IsDevice() {
		return nil, domain.ErrNotHome
	}

	cfg := d.engine.Get()
	now := d.clock.Now().In(d.loc)
	today := period.StartOfDay(now)
	if d.alreadyAdvised(home.Ref.ID, today) {
		return nil, nil
	}

	from := today.AddDate(0, 0, -cfg.AnomalyLookbackDays)
	totals, err := d.usage.DailyTotals(ctx, home, from, now)
	if err != nil {
		return nil, err
	}

	var (
		todayUsage  = decimal.Zero
		historySum  = decimal.Zero
		historyDays int
	)
	for _, total := range totals {
		if total.Day.Equal(today) {
			todayUsage = decimal.NewFromFloat(total.Consumption)
			continue
		}
		historySum = historySum.Add(decimal.NewFromFloat(total.Consumption))
		historyDays++
	}
	if historyDays == 0 {
		return nil, nil
	}

	average := historySum.Div(decimal.NewFromInt(int64(historyDays)))
	if !average.IsPositive() {
		return nil, nil
	}
	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(cfg.AnomalyPercent).Div(decimal.NewFromInt(100)))
	// Inclusive: exactly avg × factor advises.
	if todayUsage.LessThan(average.Mul(factor)) {
		return nil, nil
	}

	above := todayUsage.Sub(average).Div(average).Mul(decimal.NewFromInt(100)).Round(2)
	advisory := &domain.Advisory{
		HomeID:       home.Ref.ID,
		OwnerID:      home.OwnerID,
		HomeName:     home.Name,
		Day:          today,
		Today:        todayUsage.Round(4).InexactFloat64(),
		Average:      average.Round(4).InexactFloat64(),
		PercentAbove: above.InexactFloat64(),
		HistoryDays:  historyDays,
		RaisedAt:     now.UTC(),
	}
	advisory.Message = fmt.Sprintf("%s has used %.2f kWh today, %.1f%% above its %d-day average of %.2f kWh",
		advisory.HomeName, advisory.Today, advisory.PercentAbove, historyDays, advisory.Average)

	if !d.tryMarkAdvised(home.Ref.ID, today) {
		return nil, nil
	}
	d.metrics.RecordAnomalyAdvisory(ctx, string(home.Ref.Kind))
	d.publish(ctx, *advisory)

	d.log.Info("usage anomaly detected",
		zap.String("home_id", home.Ref.ID.String()),
		zap.Float64("today", advisory.Today),
		zap.Float64("average", advisory.Average),
		zap.Float64("percent_above", advisory.PercentAbove),
	)
	return advisory, nil
}

// One advisory per home per local day.
func (d *Detector) alreadyAdvised(homeID snowflake.ID, day time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.advised[homeID]
	return ok && last.Equal(day)
}

// tryMarkAdvised records the advisory for day and reports false when another
// check already recorded one.
func (d *Detector) tryMarkAdvised(homeID snowflake.ID, day time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.advised[homeID]; ok && last.Equal(day) {
		return false
	}
	d.advised[homeID] = day
	return true
}

func (d *Detector) publish(ctx context.Context, advisory domain.Advisory) {
	msg, err := notification.NewMessage(
		notification.TypeAnomalyAdvisory,
		fmt.Sprintf("%s:%s", advisory.HomeID, advisory.Day.Format("2006-01-02")),
		advisory.OwnerID.String(),
		nil,
		advisory.RaisedAt,
		advisory,
	)
	if err == nil {
		err = d.publisher.Publish(ctx, msg)
	}
	if err != nil {
		d.log.Warn("anomaly advisory not published",
			zap.String("home_id", advisory.HomeID.String()),
			zap.Error(err),
		)
	}
}
