package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/wattwatch/internal/scope/domain"
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

func New(p Params) domain.Resolver {
	return &Service{
		log:  p.Log.Named("scope.resolver"),
		repo: p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, ref domain.Ref) (domain.Resolved, error) {
	if err := ref.Validate(); err != nil {
		return domain.Resolved{}, err
	}

	if ref.IsDevice() {
		device, err := s.repo.FindDevice(ctx, ref.ID)
		if err != nil {
			return domain.Resolved{}, err
		}
		if device == nil {
			return domain.Resolved{}, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
		}
		home, err := s.repo.FindHome(ctx, device.HomeID)
		if err != nil {
			return domain.Resolved{}, err
		}
		if home == nil {
			return domain.Resolved{}, fmt.Errorf("%w: home of %s", domain.ErrNotFound, ref)
		}
		return domain.Resolved{
			Ref:     ref,
			Name:    device.Name,
			HomeID:  home.ID,
			OwnerID: home.OwnerID,
		}, nil
	}

	home, err := s.repo.FindHome(ctx, ref.ID)
	if err != nil {
		return domain.Resolved{}, err
	}
	if home == nil {
		return domain.Resolved{}, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return domain.Resolved{
		Ref:     ref,
		Name:    home.Name,
		HomeID:  home.ID,
		OwnerID: home.OwnerID,
	}, nil
}
