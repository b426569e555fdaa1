package repository

import (
	"context"
	"time"

	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) ListWindow(ctx context.Context, db *gorm.DB, scope scopedomain.Ref, from, to time.Time) ([]usagedomain.UsageReading, error) {
	column := "home_id"
	if scope.IsDevice() {
		column = "device_id"
	}

	var rows []usagedomain.UsageReading
	err := db.WithContext(ctx).
		Model(&usagedomain.UsageReading{}).
		Where(column+" = ?", scope.ID).
		Where("recorded_at >= ? AND recorded_at <= ?", from.UTC(), to.UTC()).
		Order("recorded_at asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
