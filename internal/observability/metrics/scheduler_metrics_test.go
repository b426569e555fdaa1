package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsSchedulerErrorRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected unique violation to be final")
	}
	if IsSchedulerErrorRetryable(gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found to be final")
	}
	if IsSchedulerErrorRetryable(errors.New("invalid_rule")) {
		t.Fatalf("expected domain error to be final")
	}
}

func TestAddRuleOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "wattwatch",
		Environment: "test",
	})

	metrics.AddRuleOutcomes(5, 2, 1)
	metrics.AddRuleOutcomes(3, 0, 0)

	if got := testutil.ToFloat64(metrics.ruleOutcomes.WithLabelValues(RuleOutcomeChecked)); got != 8 {
		t.Fatalf("expected checked count 8, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ruleOutcomes.WithLabelValues(RuleOutcomeTriggered)); got != 2 {
		t.Fatalf("expected triggered count 2, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ruleOutcomes.WithLabelValues(RuleOutcomeErrored)); got != 1 {
		t.Fatalf("expected errored count 1, got %v", got)
	}
}
