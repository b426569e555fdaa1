package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/pkg/db/option"
	"github.com/smallbiznis/wattwatch/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *domain.AlertRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindRule(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.AlertRule, error) {
	var rules []domain.AlertRule
	err := db.WithContext(ctx).
		Model(&domain.AlertRule{}).
		Where("id = ?", id).
		Limit(1).
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return &rules[0], nil
}

func (r *repo) SaveRule(ctx context.Context, db *gorm.DB, rule *domain.AlertRule) error {
	return db.WithContext(ctx).
		Model(&domain.AlertRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{
			"name":        rule.Name,
			"limit_kind":  rule.LimitKind,
			"limit_value": rule.LimitValue,
			"period":      rule.Period,
			"threshold":   rule.Threshold,
			"enabled":     rule.Enabled,
			"active":      rule.Active,
			"channels":    rule.Channels,
			"updated_at":  rule.UpdatedAt,
		}).Error
}

func (r *repo) ListEnabledRules(ctx context.Context, db *gorm.DB) ([]domain.AlertRule, error) {
	var rules []domain.AlertRule
	err := db.WithContext(ctx).
		Model(&domain.AlertRule{}).
		Where("enabled = ? AND active = ?", true, true).
		Order("id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) RecordTrigger(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE alert_rules
		 SET last_triggered_at = ?,
		     trigger_count = trigger_count + 1,
		     updated_at = ?
		 WHERE id = ?`,
		at,
		at,
		ruleID,
	).Error
}

func (r *repo) HasEventSince(ctx context.Context, db *gorm.DB, ruleID snowflake.ID, since time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.TriggeredAlertEvent{}).
		Where("rule_id = ? AND triggered_at >= ?", ruleID, since.UTC()).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.TriggeredAlertEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TriggeredAlertEvent, error) {
	var events []domain.TriggeredAlertEvent
	err := db.WithContext(ctx).
		Model(&domain.TriggeredAlertEvent{}).
		Where("id = ?", id).
		Limit(1).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *repo) MarkEventRead(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE triggered_alert_events SET is_read = ? WHERE id = ?`,
		true,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkEventResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE triggered_alert_events
		 SET is_resolved = ?,
		     resolved_at = COALESCE(resolved_at, ?)
		 WHERE id = ?`,
		true,
		at,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter domain.EventFilter, page pagination.Pagination) ([]*domain.TriggeredAlertEvent, error) {
	var events []*domain.TriggeredAlertEvent
	stmt := db.WithContext(ctx).
		Model(&domain.TriggeredAlertEvent{}).
		Where("owner_id = ?", filter.OwnerID)
	if filter.Read != nil {
		stmt = stmt.Where("is_read = ?", *filter.Read)
	}
	if filter.Resolved != nil {
		stmt = stmt.Where("is_resolved = ?", *filter.Resolved)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("id desc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) CountEvents(ctx context.Context, db *gorm.DB, ruleID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.TriggeredAlertEvent{}).
		Where("rule_id = ?", ruleID).
		Count(&count).Error
	return count, err
}
