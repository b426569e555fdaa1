package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/wattwatch/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		log:  p.Log.Named("pricing.service"),
		repo: p.Repo,
	}
}

func (s *Service) ModelForHome(ctx context.Context, homeID snowflake.ID) (*domain.PricingModel, error) {
	model, err := s.repo.FindByHome(ctx, homeID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, nil
	}
	if err := model.Validate(); err != nil {
		s.log.Warn("stored pricing model is invalid",
			zap.String("home_id", homeID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return model, nil
}

func (s *Service) WindowCost(model domain.PricingModel, samples []domain.Sample, loc *time.Location) (decimal.Decimal, error) {
	if err := model.Validate(); err != nil {
		return decimal.Zero, err
	}
	if loc == nil {
		loc = time.Local
	}

	total := decimal.Zero
	for _, sample := range samples {
		if sample.Consumption < 0 {
			return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrNegativeConsumption, sample.Consumption)
		}
		total = total.Add(decimal.NewFromFloat(sample.Consumption))
	}

	var cost decimal.Decimal
	switch model.Kind {
	case domain.KindFlat:
		cost = FlatCost(total, *model.FlatRate)
	case domain.KindTimeOfUse:
		rates := model.TimeOfUse.Data()
		cost = decimal.Zero
		for _, sample := range samples {
			cost = cost.Add(TimeOfUseCost(decimal.NewFromFloat(sample.Consumption), sample.At.In(loc), rates))
		}
	case domain.KindTiered:
		cost = TieredCost(total, model.Tiers)
	}
	return cost.Round(costPlaces), nil
}
