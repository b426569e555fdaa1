package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/notification"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/smallbiznis/wattwatch/pkg/db"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var errDuplicateBucket = errors.New("duplicate_bucket")

// evaluation is the computed state of one rule at one instant. It is never persisted.
type evaluation struct {
	scope          scopedomain.Resolved
	windowStart    time.Time
	currentValue   float64
	limitValue     float64
	percentageUsed float64
	threshold      float64
	wouldTrigger   bool
	severity       domain.Severity
	message        string
}

func (s *Service) EvaluateAll(ctx context.Context) (domain.BatchReport, error) {
	started := s.clock.Now()
	report := domain.BatchReport{
		Timestamp: started,
		Triggered: []domain.TriggeredAlertEvent{},
		Errors:    []domain.RuleError{},
	}

	rules, err := s.repo.ListEnabledRules(ctx, s.db)
	if err != nil {
		return report, fmt.Errorf("list enabled rules: %w", err)
	}

	cfg := s.engine.Get()
	results := make([]domain.RuleResult, len(rules))

	var g errgroup.Group
	g.SetLimit(cfg.MaxParallel)
	for i := range rules {
		rule := rules[i]
		g.Go(func() error {
			ruleCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.RuleTimeoutSeconds)*time.Second)
			defer cancel()
			results[i] = s.evaluateRule(ruleCtx, rule, started, cfg)
			return nil
		})
	}
	_ = g.Wait()

	report.TotalChecked = len(rules)
	report.Results = results
	for _, result := range results {
		switch {
		case result.Err != nil:
			report.Errors = append(report.Errors, domain.RuleError{RuleID: result.RuleID, Error: result.Err.Error()})
		case result.Event != nil:
			report.Triggered = append(report.Triggered, *result.Event)
		}
	}
	report.DurationMs = s.clock.Now().Sub(started).Milliseconds()

	s.log.Info("alert rules evaluated",
		zap.Int("checked", report.TotalChecked),
		zap.Int("triggered", len(report.Triggered)),
		zap.Int("errored", len(report.Errors)),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (s *Service) EvaluateOne(ctx context.Context, rule domain.AlertRule) (*domain.TriggeredAlertEvent, error) {
	if !rule.Active {
		return nil, domain.ErrRuleInactive
	}
	if !rule.Enabled {
		return nil, domain.ErrRuleDisabled
	}
	result := s.evaluateRule(ctx, rule, s.clock.Now(), s.engine.Get())
	return result.Event, result.Err
}

func (s *Service) EvaluateRule(ctx context.Context, id snowflake.ID) (*domain.TriggeredAlertEvent, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.EvaluateOne(ctx, rule)
}

// TestEvaluate runs the same computation and dedup check as a live evaluation
// without writing or checking enabled.
func (s *Service) TestEvaluate(ctx context.Context, rule domain.AlertRule) (domain.TestResult, error) {
	cfg := s.engine.Get()
	ev, err := s.compute(ctx, rule, s.clock.Now(), cfg)
	if err != nil {
		return domain.TestResult{}, err
	}
	result := domain.TestResult{
		WouldTrigger:   ev.wouldTrigger,
		CurrentValue:   ev.currentValue,
		LimitValue:     ev.limitValue,
		PercentageUsed: ev.percentageUsed,
	}
	if ev.wouldTrigger && rule.ID != 0 {
		exists, err := retryOp(ctx, cfg.RetryAttempts, s.retryInitial, func() (bool, error) {
			return s.repo.HasEventSince(ctx, s.db, rule.ID, ev.windowStart)
		})
		if err != nil {
			return domain.TestResult{}, fmt.Errorf("%w: %w", domain.ErrDedupUnconfirmed, err)
		}
		result.AlreadyTriggered = exists
		result.WouldTrigger = !exists
	}
	if ev.wouldTrigger {
		result.Severity = ev.severity
		result.Message = ev.message
	}
	return result, nil
}

func (s *Service) TestEvaluateRule(ctx context.Context, id snowflake.ID) (domain.TestResult, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return domain.TestResult{}, err
	}
	return s.TestEvaluate(ctx, rule)
}

func (s *Service) MonitoredHomes(ctx context.Context) ([]scopedomain.Resolved, error) {
	rules, err := s.repo.ListEnabledRules(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}

	seen := make(map[snowflake.ID]bool)
	homes := make([]scopedomain.Resolved, 0)
	for _, rule := range rules {
		resolved, err := s.scopes.Resolve(ctx, rule.Scope())
		if err != nil {
			s.log.Warn("skip unresolvable rule scope",
				zap.String("rule_id", rule.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if seen[resolved.HomeID] {
			continue
		}
		seen[resolved.HomeID] = true

		if !resolved.Ref.IsDevice() {
			homes = append(homes, resolved)
			continue
		}
		home, err := s.scopes.Resolve(ctx, scopedomain.HomeRef(resolved.HomeID))
		if err != nil {
			s.log.Warn("skip unresolvable home",
				zap.String("home_id", resolved.HomeID.String()),
				zap.Error(err),
			)
			continue
		}
		homes = append(homes, home)
	}
	return homes, nil
}

// evaluateRule never returns an error directly; failures are carried on the result.
func (s *Service) evaluateRule(ctx context.Context, rule domain.AlertRule, now time.Time, cfg config.EngineConfig) domain.RuleResult {
	result := domain.RuleResult{RuleID: rule.ID}
	periodLabel := string(rule.Period)

	ev, err := s.compute(ctx, rule, now, cfg)
	if err != nil {
		return s.failed(ctx, result, rule, err)
	}
	result.PercentageUsed = ev.percentageUsed

	if !ev.wouldTrigger {
		result.Outcome = domain.OutcomeBelowThreshold
		s.metrics.RecordRuleEvaluated(ctx, periodLabel, string(result.Outcome))
		return result
	}

	event, err := s.trigger(ctx, rule, ev, now, cfg)
	if err != nil {
		return s.failed(ctx, result, rule, err)
	}
	if event == nil {
		result.Outcome = domain.OutcomeDeduplicated
		s.metrics.RecordRuleEvaluated(ctx, periodLabel, string(result.Outcome))
		return result
	}

	result.Outcome = domain.OutcomeTriggered
	result.Event = event
	s.metrics.RecordRuleEvaluated(ctx, periodLabel, string(result.Outcome))
	s.metrics.RecordAlertTriggered(ctx, periodLabel, string(event.Severity))
	s.publish(ctx, rule, *event)
	return result
}

func (s *Service) failed(ctx context.Context, result domain.RuleResult, rule domain.AlertRule, err error) domain.RuleResult {
	result.Outcome = domain.OutcomeError
	result.Err = fmt.Errorf("rule %s: %w", rule.ID, err)
	s.metrics.RecordRuleEvaluated(ctx, string(rule.Period), string(result.Outcome))
	s.log.Warn("alert rule evaluation failed",
		zap.String("rule_id", rule.ID.String()),
		zap.String("period", string(rule.Period)),
		zap.Error(err),
	)
	return result
}

func (s *Service) compute(ctx context.Context, rule domain.AlertRule, now time.Time, cfg config.EngineConfig) (evaluation, error) {
	if err := rule.Validate(); err != nil {
		return evaluation{}, err
	}

	resolved, err := s.scopes.Resolve(ctx, rule.Scope())
	if err != nil {
		return evaluation{}, err
	}

	agg, err := s.usage.AggregateAt(ctx, resolved, rule.Period, now)
	if err != nil {
		return evaluation{}, err
	}

	current := agg.TotalConsumption
	if rule.LimitKind == domain.LimitCost {
		current = agg.TotalCost
	}
	// Threshold and severity compare the exact ratio; only the reported value is rounded.
	raw := decimal.NewFromFloat(current).
		Div(decimal.NewFromFloat(rule.LimitValue)).
		Mul(decimal.NewFromInt(100))
	pct := raw.Round(2).InexactFloat64()

	ev := evaluation{
		scope:          resolved,
		windowStart:    agg.WindowStart,
		currentValue:   current,
		limitValue:     rule.LimitValue,
		percentageUsed: pct,
		threshold:      rule.EffectiveThreshold(cfg.DefaultThreshold),
	}
	ev.wouldTrigger = raw.GreaterThanOrEqual(decimal.NewFromFloat(ev.threshold))
	ev.severity = domain.ClassifySeverity(raw.InexactFloat64())
	ev.message = composeMessage(rule, resolved, current, pct)
	return ev, nil
}

// trigger returns nil without error when an event already exists for the current window.
func (s *Service) trigger(ctx context.Context, rule domain.AlertRule, ev evaluation, now time.Time, cfg config.EngineConfig) (*domain.TriggeredAlertEvent, error) {
	exists, err := retryOp(ctx, cfg.RetryAttempts, s.retryInitial, func() (bool, error) {
		return s.repo.HasEventSince(ctx, s.db, rule.ID, ev.windowStart)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDedupUnconfirmed, err)
	}
	if exists {
		return nil, nil
	}

	dedupKey, err := period.DedupKey(rule.Period, now.In(s.loc))
	if err != nil {
		return nil, err
	}

	event := &domain.TriggeredAlertEvent{
		ID:             s.genID.Generate(),
		RuleID:         rule.ID,
		OwnerID:        rule.OwnerID,
		ScopeKind:      ev.scope.Ref.Kind,
		ScopeID:        ev.scope.Ref.ID,
		ScopeName:      ev.scope.Name,
		Message:        ev.message,
		CurrentValue:   ev.currentValue,
		LimitValue:     ev.limitValue,
		PercentageUsed: ev.percentageUsed,
		Severity:       ev.severity,
		Period:         rule.Period,
		DedupKey:       dedupKey,
		TriggeredAt:    now.UTC(),
	}

	_, err = retryOp(ctx, cfg.RetryAttempts, s.retryInitial, func() (struct{}, error) {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.InsertEvent(ctx, tx, event); err != nil {
				return err
			}
			return s.repo.RecordTrigger(ctx, tx, rule.ID, event.TriggeredAt)
		})
		if db.IsDuplicateKeyErr(err) {
			return struct{}{}, backoff.Permanent(errDuplicateBucket)
		}
		return struct{}{}, err
	})
	if errors.Is(err, errDuplicateBucket) {
		s.log.Info("alert already recorded by a concurrent evaluation",
			zap.String("rule_id", rule.ID.String()),
			zap.String("dedup_key", dedupKey),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist triggered event: %w", err)
	}

	s.log.Info("alert triggered",
		zap.String("rule_id", rule.ID.String()),
		zap.String("event_id", event.ID.String()),
		zap.String("severity", string(event.Severity)),
		zap.Float64("percentage_used", event.PercentageUsed),
		zap.String("dedup_key", dedupKey),
	)
	return event, nil
}

func (s *Service) publish(ctx context.Context, rule domain.AlertRule, event domain.TriggeredAlertEvent) {
	msg, err := notification.NewMessage(
		notification.TypeAlertTriggered,
		fmt.Sprintf("%s:%s", event.RuleID, event.DedupKey),
		event.OwnerID.String(),
		rule.Channels,
		event.TriggeredAt,
		event,
	)
	if err == nil {
		err = s.publisher.Publish(ctx, msg)
	}
	if err != nil {
		s.log.Warn("triggered alert not published",
			zap.String("event_id", event.ID.String()),
			zap.Error(err),
		)
	}
}
