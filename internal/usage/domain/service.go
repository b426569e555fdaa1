package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// ListWindow returns readings for the scope with from <= recorded_at <= to, oldest first.
	ListWindow(ctx context.Context, db *gorm.DB, scope scopedomain.Ref, from, to time.Time) ([]UsageReading, error)
}

type Service interface {
	Aggregate(ctx context.Context, scope scopedomain.Resolved, p period.Period) (Aggregate, error)
	AggregateAt(ctx context.Context, scope scopedomain.Resolved, p period.Period, now time.Time) (Aggregate, error)
	DailyTotals(ctx context.Context, scope scopedomain.Resolved, from, to time.Time) ([]DailyTotal, error)
}

var (
	ErrInvalidWindow = errors.New("invalid_window")
)
