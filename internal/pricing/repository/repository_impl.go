package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/pricing/domain"
	"github.com/smallbiznis/wattwatch/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	models repository.Repository[domain.PricingModel]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{models: repository.ProvideStore[domain.PricingModel](db)}
}

func (r *repo) FindByHome(ctx context.Context, homeID snowflake.ID) (*domain.PricingModel, error) {
	return r.models.FindOne(ctx, &domain.PricingModel{HomeID: homeID})
}
