package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/pkg/db/pagination"
	"gorm.io/gorm"
)

type EventFilter struct {
	OwnerID  snowflake.ID
	Read     *bool
	Resolved *bool
}

type Repository interface {
	InsertRule(ctx context.Context, db *gorm.DB, rule *AlertRule) error
	FindRule(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AlertRule, error)
	SaveRule(ctx context.Context, db *gorm.DB, rule *AlertRule) error
	ListEnabledRules(ctx context.Context, db *gorm.DB) ([]AlertRule, error)
	// RecordTrigger bumps trigger bookkeeping. Dedup never reads these columns.
	RecordTrigger(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, at time.Time) error

	HasEventSince(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, since time.Time) (bool, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *TriggeredAlertEvent) error
	FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TriggeredAlertEvent, error)
	MarkEventRead(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	MarkEventResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter, page pagination.Pagination) ([]*TriggeredAlertEvent, error)
	CountEvents(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error)
}
