package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"go.uber.org/zap"
)

const maxRuleNameLength = 200

var allowedChannels = map[string]bool{
	"push":   true,
	"email":  true,
	"sms":    true,
	"in_app": true,
}

func (s *Service) CreateRule(ctx context.Context, req domain.CreateRuleRequest) (domain.AlertRule, error) {
	if req.OwnerID == 0 {
		return domain.AlertRule{}, domain.ErrInvalidOwner
	}
	name, err := normalizeName(req.Name)
	if err != nil {
		return domain.AlertRule{}, err
	}
	if err := req.Scope.Validate(); err != nil {
		return domain.AlertRule{}, err
	}
	if err := req.Limit.Validate(); err != nil {
		return domain.AlertRule{}, err
	}
	if err := validatePeriod(req.Period); err != nil {
		return domain.AlertRule{}, err
	}
	if err := validateThreshold(req.Threshold); err != nil {
		return domain.AlertRule{}, err
	}
	channels, err := normalizeChannels(req.Channels)
	if err != nil {
		return domain.AlertRule{}, err
	}

	resolved, err := s.scopes.Resolve(ctx, req.Scope)
	if err != nil {
		return domain.AlertRule{}, err
	}
	if resolved.OwnerID != req.OwnerID {
		return domain.AlertRule{}, fmt.Errorf("%w: %s belongs to another owner", scopedomain.ErrInvalidScope, req.Scope)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := s.clock.Now().UTC()
	rule := domain.AlertRule{
		ID:         s.genID.Generate(),
		OwnerID:    req.OwnerID,
		Name:       name,
		ScopeKind:  req.Scope.Kind,
		ScopeID:    req.Scope.ID,
		LimitKind:  req.Limit.Kind,
		LimitValue: req.Limit.Value,
		Period:     req.Period,
		Threshold:  req.Threshold,
		Enabled:    enabled,
		Active:     true,
		Channels:   channels,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertRule(ctx, s.db, &rule); err != nil {
		return domain.AlertRule{}, err
	}

	s.log.Info("alert rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("owner_id", rule.OwnerID.String()),
		zap.String("scope", rule.Scope().String()),
	)
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, id snowflake.ID, req domain.UpdateRuleRequest) (domain.AlertRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return domain.AlertRule{}, err
	}
	if !rule.Active {
		return domain.AlertRule{}, domain.ErrRuleInactive
	}

	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return domain.AlertRule{}, err
		}
		rule.Name = name
	}
	if req.Limit != nil {
		if err := req.Limit.Validate(); err != nil {
			return domain.AlertRule{}, err
		}
		rule.LimitKind = req.Limit.Kind
		rule.LimitValue = req.Limit.Value
	}
	if req.Period != nil {
		if err := validatePeriod(*req.Period); err != nil {
			return domain.AlertRule{}, err
		}
		rule.Period = *req.Period
	}
	if req.Threshold != nil {
		if err := validateThreshold(*req.Threshold); err != nil {
			return domain.AlertRule{}, err
		}
		rule.Threshold = *req.Threshold
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Channels != nil {
		channels, err := normalizeChannels(*req.Channels)
		if err != nil {
			return domain.AlertRule{}, err
		}
		rule.Channels = channels
	}

	rule.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveRule(ctx, s.db, &rule); err != nil {
		return domain.AlertRule{}, err
	}
	return rule, nil
}

// DeactivateRule soft-deletes a rule; its history of triggered events is kept.
func (s *Service) DeactivateRule(ctx context.Context, id snowflake.ID) error {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return err
	}
	if !rule.Active {
		return nil
	}

	rule.Active = false
	rule.Enabled = false
	rule.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveRule(ctx, s.db, &rule); err != nil {
		return err
	}

	s.log.Info("alert rule deactivated", zap.String("rule_id", rule.ID.String()))
	return nil
}

func (s *Service) GetRule(ctx context.Context, id snowflake.ID) (domain.AlertRule, error) {
	if id == 0 {
		return domain.AlertRule{}, domain.ErrInvalidID
	}
	rule, err := s.repo.FindRule(ctx, s.db, id)
	if err != nil {
		return domain.AlertRule{}, err
	}
	if rule == nil {
		return domain.AlertRule{}, domain.ErrRuleNotFound
	}
	return *rule, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxRuleNameLength {
		return "", domain.ErrInvalidName
	}
	return name, nil
}

func validatePeriod(p period.Period) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPeriod, p)
	}
	return nil
}

func validateThreshold(threshold float64) error {
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("%w: %v is outside 0-100", domain.ErrInvalidThreshold, threshold)
	}
	return nil
}

func normalizeChannels(raw []string) (pq.StringArray, error) {
	channels := make([]string, 0, len(raw))
	for _, item := range raw {
		channel := strings.ToLower(strings.TrimSpace(item))
		if channel == "" {
			continue
		}
		if !allowedChannels[channel] {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidChannel, item)
		}
		channels = append(channels, channel)
	}
	slices.Sort(channels)
	return pq.StringArray(slices.Compact(channels)), nil
}
