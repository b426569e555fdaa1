package service

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/wattwatch/internal/pricing/domain"
)

const costPlaces = 4

// FlatCost is consumption times rate.
func FlatCost(consumption decimal.Decimal, rate float64) decimal.Decimal {
	return consumption.Mul(decimal.NewFromFloat(rate))
}

// TimeOfUseCost prices consumption at exactly one rate chosen from at.
func TimeOfUseCost(consumption decimal.Decimal, at time.Time, rates domain.TimeOfUseRates) decimal.Decimal {
	return consumption.Mul(decimal.NewFromFloat(TimeOfUseRate(at, rates)))
}

// TimeOfUseRate applies weekend, then hour band, then base.
func TimeOfUseRate(at time.Time, rates domain.TimeOfUseRates) float64 {
	if isWeekend(at) && rates.Weekend != nil {
		return *rates.Weekend
	}

	var band *float64
	switch hour := at.Hour(); {
	case hour < 6:
		band = rates.OffPeak
	case hour < 10:
		band = rates.MidPeak
	case hour < 18:
		band = rates.Peak
	case hour < 22:
		band = rates.MidPeak
	default:
		band = rates.OffPeak
	}
	if band != nil {
		return *band
	}
	return rates.Base
}

// TieredCost walks tiers in the given order, consuming min(remaining, limit) at each rate.
// Consumption beyond a bounded last tier is not priced.
func TieredCost(total decimal.Decimal, tiers []domain.Tier) decimal.Decimal {
	cost := decimal.Zero
	remaining := total
	for _, tier := range tiers {
		if !remaining.IsPositive() {
			break
		}
		take := remaining
		if tier.Limit != nil {
			take = decimal.Min(remaining, decimal.NewFromFloat(*tier.Limit))
		}
		cost = cost.Add(take.Mul(decimal.NewFromFloat(tier.Rate)))
		remaining = remaining.Sub(take)
	}
	return cost
}

func isWeekend(at time.Time) bool {
	day := at.Weekday()
	return day == time.Saturday || day == time.Sunday
}
