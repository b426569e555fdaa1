package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Repository interface {
	FindByHome(ctx context.Context, homeID snowflake.ID) (*PricingModel, error)
}

type Service interface {
	// ModelForHome returns nil when the home has no pricing model.
	ModelForHome(ctx context.Context, homeID snowflake.ID) (*PricingModel, error)
	// WindowCost prices a window of samples; time-of-use bands use loc.
	WindowCost(model PricingModel, samples []Sample, loc *time.Location) (decimal.Decimal, error)
}

var (
	ErrInvalidPricingModel = errors.New("invalid_pricing_model")
	ErrNegativeConsumption = errors.New("negative_consumption")
)
