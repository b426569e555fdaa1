package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
)

type LimitKind string

const (
	LimitConsumption LimitKind = "consumption"
	LimitCost        LimitKind = "cost"
)

// Limit is either a consumption cap in kWh or a cost cap, never both.
type Limit struct {
	Kind  LimitKind `json:"kind"`
	Value float64   `json:"value"`
}

func ConsumptionLimit(kwh float64) Limit {
	return Limit{Kind: LimitConsumption, Value: kwh}
}

func CostLimit(value float64) Limit {
	return Limit{Kind: LimitCost, Value: value}
}

func (l Limit) Validate() error {
	if l.Kind != LimitConsumption && l.Kind != LimitCost {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidLimit, l.Kind)
	}
	if !(l.Value > 0) {
		return fmt.Errorf("%w: value must be > 0", ErrInvalidLimit)
	}
	return nil
}

func (l Limit) Unit() string {
	if l.Kind == LimitConsumption {
		return "kWh"
	}
	return "cost"
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ClassifySeverity maps percentage used onto a severity band.
func ClassifySeverity(percentageUsed float64) Severity {
	switch {
	case percentageUsed >= 100:
		return SeverityCritical
	case percentageUsed >= 90:
		return SeverityHigh
	case percentageUsed >= 80:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

type AlertRule struct {
	ID              snowflake.ID     `gorm:"primaryKey" json:"id"`
	OwnerID         snowflake.ID     `gorm:"not null;index" json:"owner_id"`
	Name            string           `gorm:"not null" json:"name"`
	ScopeKind       scopedomain.Kind `gorm:"not null" json:"scope_kind"`
	ScopeID         snowflake.ID     `gorm:"not null" json:"scope_id"`
	LimitKind       LimitKind        `gorm:"not null" json:"limit_kind"`
	LimitValue      float64          `gorm:"not null" json:"limit_value"`
	Period          period.Period    `gorm:"not null" json:"period"`
	Threshold       float64          `gorm:"not null" json:"threshold"`
	Enabled         bool             `gorm:"not null" json:"enabled"`
	Active          bool             `gorm:"not null" json:"active"`
	Channels        pq.StringArray   `gorm:"type:text[];not null" json:"channels"`
	LastTriggeredAt *time.Time       `json:"last_triggered_at,omitempty"`
	TriggerCount    int              `gorm:"not null" json:"trigger_count"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (AlertRule) TableName() string { return "alert_rules" }

func (r AlertRule) Scope() scopedomain.Ref {
	return scopedomain.Ref{Kind: r.ScopeKind, ID: r.ScopeID}
}

func (r AlertRule) Limit() Limit {
	return Limit{Kind: r.LimitKind, Value: r.LimitValue}
}

// Validate reports whether a rule is well-formed enough to evaluate.
func (r AlertRule) Validate() error {
	if err := r.Scope().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if err := r.Limit().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if !r.Period.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidRule, ErrInvalidPeriod)
	}
	if r.Threshold < 0 || r.Threshold > 100 {
		return fmt.Errorf("%w: %w", ErrInvalidRule, ErrInvalidThreshold)
	}
	return nil
}

// EffectiveThreshold substitutes the configured default for an unset (zero) threshold.
func (r AlertRule) EffectiveThreshold(defaultThreshold float64) float64 {
	if r.Threshold == 0 {
		return defaultThreshold
	}
	return r.Threshold
}

// TriggeredAlertEvent is append-only apart from the read and resolved flags.
type TriggeredAlertEvent struct {
	ID             snowflake.ID     `gorm:"primaryKey" json:"id"`
	RuleID         snowflake.ID     `gorm:"not null" json:"rule_id"`
	OwnerID        snowflake.ID     `gorm:"not null" json:"owner_id"`
	ScopeKind      scopedomain.Kind `gorm:"not null" json:"scope_kind"`
	ScopeID        snowflake.ID     `gorm:"not null" json:"scope_id"`
	ScopeName      string           `gorm:"not null" json:"scope_name"`
	Message        string           `gorm:"not null" json:"message"`
	CurrentValue   float64          `gorm:"not null" json:"current_value"`
	LimitValue     float64          `gorm:"not null" json:"limit_value"`
	PercentageUsed float64          `gorm:"not null" json:"percentage_used"`
	Severity       Severity         `gorm:"not null" json:"severity"`
	Period         period.Period    `gorm:"not null" json:"period"`
	DedupKey       string           `gorm:"not null" json:"dedup_key"`
	Read           bool             `gorm:"column:is_read;not null" json:"read"`
	Resolved       bool             `gorm:"column:is_resolved;not null" json:"resolved"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	TriggeredAt    time.Time        `gorm:"not null" json:"triggered_at"`
}

func (TriggeredAlertEvent) TableName() string { return "triggered_alert_events" }
