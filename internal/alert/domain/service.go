package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/smallbiznis/wattwatch/pkg/db/pagination"
)

type CreateRuleRequest struct {
	OwnerID   snowflake.ID    `json:"owner_id"`
	Name      string          `json:"name"`
	Scope     scopedomain.Ref `json:"scope"`
	Limit     Limit           `json:"limit"`
	Period    period.Period   `json:"period"`
	Threshold float64         `json:"threshold"`
	Enabled   *bool           `json:"enabled"`
	Channels  []string        `json:"channels"`
}

// UpdateRuleRequest patches the provided fields. Scope and owner are fixed at creation.
type UpdateRuleRequest struct {
	Name      *string        `json:"name"`
	Limit     *Limit         `json:"limit"`
	Period    *period.Period `json:"period"`
	Threshold *float64       `json:"threshold"`
	Enabled   *bool          `json:"enabled"`
	Channels  *[]string      `json:"channels"`
}

type Outcome string

const (
	OutcomeTriggered      Outcome = "triggered"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeDeduplicated   Outcome = "deduplicated"
	OutcomeError          Outcome = "error"
)

// RuleResult is the explicit outcome of evaluating one rule inside a batch.
type RuleResult struct {
	RuleID         snowflake.ID         `json:"rule_id"`
	Outcome        Outcome              `json:"outcome"`
	PercentageUsed float64              `json:"percentage_used"`
	Event          *TriggeredAlertEvent `json:"event,omitempty"`
	Err            error                `json:"-"`
}

type RuleError struct {
	RuleID snowflake.ID `json:"rule_id"`
	Error  string       `json:"error"`
}

type BatchReport struct {
	TotalChecked int                   `json:"total_checked"`
	Triggered    []TriggeredAlertEvent `json:"triggered"`
	Errors       []RuleError           `json:"errors"`
	Results      []RuleResult          `json:"-"`
	DurationMs   int64                 `json:"duration_ms"`
	Timestamp    time.Time             `json:"timestamp"`
}

// Err joins the per-rule failures of the batch, nil when every rule succeeded.
func (r BatchReport) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	return errors.Join(errs...)
}

// TestResult is a dry run. AlreadyTriggered is set when the current window already holds an event,
// in which case WouldTrigger is false.
type TestResult struct {
	WouldTrigger     bool     `json:"would_trigger"`
	AlreadyTriggered bool     `json:"already_triggered"`
	CurrentValue     float64  `json:"current_value"`
	LimitValue       float64  `json:"limit_value"`
	PercentageUsed   float64  `json:"percentage_used"`
	Severity         Severity `json:"severity,omitempty"`
	Message          string   `json:"message,omitempty"`
}

type ListEventsRequest struct {
	OwnerID   snowflake.ID
	Read      *bool
	Resolved  *bool
	PageToken string
	PageSize  int
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []TriggeredAlertEvent `json:"events"`
}

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (AlertRule, error)
	UpdateRule(ctx context.Context, id snowflake.ID, req UpdateRuleRequest) (AlertRule, error)
	DeactivateRule(ctx context.Context, id snowflake.ID) error
	GetRule(ctx context.Context, id snowflake.ID) (AlertRule, error)

	// EvaluateAll returns an error only when the enabled rules cannot be listed.
	EvaluateAll(ctx context.Context) (BatchReport, error)
	EvaluateOne(ctx context.Context, rule AlertRule) (*TriggeredAlertEvent, error)
	EvaluateRule(ctx context.Context, id snowflake.ID) (*TriggeredAlertEvent, error)
	TestEvaluate(ctx context.Context, rule AlertRule) (TestResult, error)
	TestEvaluateRule(ctx context.Context, id snowflake.ID) (TestResult, error)
	// MonitoredHomes resolves the distinct homes watched by enabled rules.
	MonitoredHomes(ctx context.Context) ([]scopedomain.Resolved, error)

	ListTriggeredEvents(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)
	MarkRead(ctx context.Context, id snowflake.ID) (TriggeredAlertEvent, error)
	MarkResolved(ctx context.Context, id snowflake.ID) (TriggeredAlertEvent, error)
}

var (
	ErrInvalidRule      = errors.New("invalid_rule")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidLimit     = errors.New("invalid_limit")
	ErrInvalidPeriod    = errors.New("invalid_period")
	ErrInvalidThreshold = errors.New("invalid_threshold")
	ErrInvalidChannel   = errors.New("invalid_channel")
	ErrInvalidID        = errors.New("invalid_id")
	ErrRuleNotFound     = errors.New("rule_not_found")
	ErrRuleDisabled     = errors.New("rule_disabled")
	ErrRuleInactive     = errors.New("rule_inactive")
	ErrEventNotFound    = errors.New("event_not_found")
	// ErrDedupUnconfirmed means the existence check failed; the rule is skipped rather than risk a duplicate.
	ErrDedupUnconfirmed = errors.New("dedup_unconfirmed")
)
