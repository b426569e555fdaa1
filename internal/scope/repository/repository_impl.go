package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/smallbiznis/wattwatch/pkg/repository"
	"gorm.io/gorm"
)

type repo struct {
	homes   repository.Repository[domain.Home]
	devices repository.Repository[domain.Device]
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{
		homes:   repository.ProvideStore[domain.Home](db),
		devices: repository.ProvideStore[domain.Device](db),
	}
}

func (r *repo) FindHome(ctx context.Context, id snowflake.ID) (*domain.Home, error) {
	return r.homes.FindOne(ctx, &domain.Home{ID: id})
}

func (r *repo) FindDevice(ctx context.Context, id snowflake.ID) (*domain.Device, error) {
	return r.devices.FindOne(ctx, &domain.Device{ID: id})
}
