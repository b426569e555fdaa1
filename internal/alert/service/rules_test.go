package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/period"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	"github.com/stretchr/testify/require"
)

func validRequest() domain.CreateRuleRequest {
	return domain.CreateRuleRequest{
		OwnerID:   ownerID,
		Name:      "  Monthly cap ",
		Scope:     scopedomain.HomeRef(homeID),
		Limit:     domain.ConsumptionLimit(300),
		Period:    period.Monthly,
		Threshold: 75,
		Channels:  []string{"Email", "push", "email", " "},
	}
}

func TestCreateRuleNormalizes(t *testing.T) {
	f := newFixture(t)

	rule, err := f.svc.CreateRule(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotZero(t, rule.ID)
	require.Equal(t, "Monthly cap", rule.Name)
	require.True(t, rule.Enabled)
	require.True(t, rule.Active)
	require.Equal(t, []string{"email", "push"}, []string(rule.Channels))

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.Equal(t, rule.Name, stored.Name)
	require.Equal(t, []string{"email", "push"}, []string(stored.Channels))
}

func TestCreateRuleValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		mutate func(*domain.CreateRuleRequest)
		want   error
	}{
		{"missing owner", func(r *domain.CreateRuleRequest) { r.OwnerID = 0 }, domain.ErrInvalidOwner},
		{"blank name", func(r *domain.CreateRuleRequest) { r.Name = "  " }, domain.ErrInvalidName},
		{"bad scope", func(r *domain.CreateRuleRequest) { r.Scope = scopedomain.Ref{Kind: "street", ID: 1} }, scopedomain.ErrInvalidScope},
		{"zero limit", func(r *domain.CreateRuleRequest) { r.Limit = domain.CostLimit(0) }, domain.ErrInvalidLimit},
		{"bad period", func(r *domain.CreateRuleRequest) { r.Period = "yearly" }, domain.ErrInvalidPeriod},
		{"threshold above 100", func(r *domain.CreateRuleRequest) { r.Threshold = 101 }, domain.ErrInvalidThreshold},
		{"negative threshold", func(r *domain.CreateRuleRequest) { r.Threshold = -1 }, domain.ErrInvalidThreshold},
		{"unknown channel", func(r *domain.CreateRuleRequest) { r.Channels = []string{"pager"} }, domain.ErrInvalidChannel},
		{"missing home", func(r *domain.CreateRuleRequest) { r.Scope = scopedomain.HomeRef(404) }, scopedomain.ErrNotFound},
		{"foreign owner", func(r *domain.CreateRuleRequest) { r.OwnerID = 2 }, scopedomain.ErrInvalidScope},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.svc.CreateRule(context.Background(), req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateRuleDisabled(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	enabled := false
	req.Enabled = &enabled

	rule, err := f.svc.CreateRule(context.Background(), req)
	require.NoError(t, err)
	require.False(t, rule.Enabled)
}

func TestUpdateRulePatchesFields(t *testing.T) {
	f := newFixture(t)
	rule, err := f.svc.CreateRule(context.Background(), validRequest())
	require.NoError(t, err)

	name := "Weekly cap"
	weekly := period.Weekly
	threshold := 90.0
	limit := domain.CostLimit(25)
	channels := []string{"sms"}
	updated, err := f.svc.UpdateRule(context.Background(), rule.ID, domain.UpdateRuleRequest{
		Name:      &name,
		Period:    &weekly,
		Threshold: &threshold,
		Limit:     &limit,
		Channels:  &channels,
	})
	require.NoError(t, err)
	require.Equal(t, "Weekly cap", updated.Name)

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.Equal(t, period.Weekly, stored.Period)
	require.Equal(t, 90.0, stored.Threshold)
	require.Equal(t, domain.LimitCost, stored.LimitKind)
	require.Equal(t, 25.0, stored.LimitValue)
	require.Equal(t, []string{"sms"}, []string(stored.Channels))
	require.Equal(t, rule.Scope(), stored.Scope())
}

func TestUpdateRuleRejectsInvalidPatch(t *testing.T) {
	f := newFixture(t)
	rule, err := f.svc.CreateRule(context.Background(), validRequest())
	require.NoError(t, err)

	threshold := 150.0
	_, err = f.svc.UpdateRule(context.Background(), rule.ID, domain.UpdateRuleRequest{Threshold: &threshold})
	require.ErrorIs(t, err, domain.ErrInvalidThreshold)

	_, err = f.svc.UpdateRule(context.Background(), 12345, domain.UpdateRuleRequest{})
	require.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestDeactivateRuleKeepsHistory(t *testing.T) {
	f := newFixture(t)
	rule := f.createDailyRule(t, 50, 80)
	f.addUsage(t, 45, f.clock.Now())

	_, err := f.svc.EvaluateOne(context.Background(), rule)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateRule(context.Background(), rule.ID))
	require.NoError(t, f.svc.DeactivateRule(context.Background(), rule.ID))

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.False(t, stored.Enabled)
	require.EqualValues(t, 1, f.countEvents(t, rule.ID))

	enabled := true
	_, err = f.svc.UpdateRule(context.Background(), rule.ID, domain.UpdateRuleRequest{Enabled: &enabled})
	require.ErrorIs(t, err, domain.ErrRuleInactive)
}

func TestGetRuleRejectsZeroID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetRule(context.Background(), 0)
	require.ErrorIs(t, err, domain.ErrInvalidID)
}
