package service

import (
	"fmt"

	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
)

func composeMessage(rule domain.AlertRule, scope scopedomain.Resolved, current, percentageUsed float64) string {
	return fmt.Sprintf("%s: %s has used %s of its %s %s limit (%.1f%%)",
		rule.Name,
		scope.Name,
		formatAmount(rule.LimitKind, current),
		formatAmount(rule.LimitKind, rule.LimitValue),
		rule.Period,
		percentageUsed,
	)
}

func formatAmount(kind domain.LimitKind, value float64) string {
	if kind == domain.LimitConsumption {
		return fmt.Sprintf("%.2f kWh", value)
	}
	return fmt.Sprintf("%.2f", value)
}
