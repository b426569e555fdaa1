package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/wattwatch/internal/migration/migrationtest"
	"github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/smallbiznis/wattwatch/internal/scope/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolve(t *testing.T) {
	db := migrationtest.Open(t)
	require.NoError(t, db.Create(&domain.Home{ID: 10, OwnerID: 7, Name: "Lake House"}).Error)
	require.NoError(t, db.Create(&domain.Device{ID: 20, HomeID: 10, Name: "Heat Pump"}).Error)

	svc := New(Params{Log: zap.NewNop(), Repo: repository.Provide(db)})
	ctx := context.Background()

	home, err := svc.Resolve(ctx, domain.HomeRef(10))
	require.NoError(t, err)
	require.Equal(t, "Lake House", home.Name)
	require.EqualValues(t, 7, home.OwnerID)
	require.EqualValues(t, 10, home.HomeID)

	device, err := svc.Resolve(ctx, domain.DeviceRef(20))
	require.NoError(t, err)
	require.Equal(t, "Heat Pump", device.Name)
	require.EqualValues(t, 10, device.HomeID)
	require.EqualValues(t, 7, device.OwnerID)
}

func TestResolveMissing(t *testing.T) {
	db := migrationtest.Open(t)
	svc := New(Params{Log: zap.NewNop(), Repo: repository.Provide(db)})

	_, err := svc.Resolve(context.Background(), domain.DeviceRef(99))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Resolve(context.Background(), domain.Ref{Kind: "garage", ID: 1})
	require.ErrorIs(t, err, domain.ErrInvalidScope)

	_, err = svc.Resolve(context.Background(), domain.HomeRef(0))
	require.ErrorIs(t, err, domain.ErrInvalidScope)
}
