package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindFlat      Kind = "flat"
	KindTimeOfUse Kind = "time_of_use"
	KindTiered    Kind = "tiered"
)

// TimeOfUseRates is a rate table keyed by weekend and hour-of-day band.
// Unset band rates fall back to Base.
type TimeOfUseRates struct {
	Peak    *float64 `json:"peak,omitempty"`
	MidPeak *float64 `json:"mid_peak,omitempty"`
	OffPeak *float64 `json:"off_peak,omitempty"`
	Weekend *float64 `json:"weekend,omitempty"`
	Base    float64  `json:"base"`
}

// Tier consumes up to Limit units at Rate. A nil Limit absorbs the remainder.
type Tier struct {
	Limit *float64 `json:"limit,omitempty"`
	Rate  float64  `json:"rate"`
}

// PricingModel is attached to a home and used only to derive cost.
type PricingModel struct {
	ID        snowflake.ID                       `gorm:"primaryKey" json:"id"`
	HomeID    snowflake.ID                       `gorm:"not null;uniqueIndex" json:"home_id"`
	Kind      Kind                               `gorm:"not null" json:"kind"`
	FlatRate  *float64                           `gorm:"column:flat_rate" json:"flat_rate,omitempty"`
	TimeOfUse datatypes.JSONType[TimeOfUseRates] `gorm:"column:time_of_use;not null" json:"time_of_use"`
	Tiers     datatypes.JSONSlice[Tier]          `gorm:"column:tiers;not null" json:"tiers"`
	CreatedAt time.Time                          `json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
}

func (PricingModel) TableName() string { return "pricing_models" }

func NewFlat(homeID snowflake.ID, rate float64) PricingModel {
	return PricingModel{HomeID: homeID, Kind: KindFlat, FlatRate: &rate}
}

func NewTimeOfUse(homeID snowflake.ID, rates TimeOfUseRates) PricingModel {
	return PricingModel{HomeID: homeID, Kind: KindTimeOfUse, TimeOfUse: datatypes.NewJSONType(rates)}
}

func NewTiered(homeID snowflake.ID, tiers []Tier) PricingModel {
	return PricingModel{HomeID: homeID, Kind: KindTiered, Tiers: datatypes.NewJSONSlice(tiers)}
}

// Validate rejects negative rates and malformed tier lists. Tier order is the caller's.
func (m PricingModel) Validate() error {
	switch m.Kind {
	case KindFlat:
		if m.FlatRate == nil || *m.FlatRate < 0 {
			return fmt.Errorf("%w: flat rate must be >= 0", ErrInvalidPricingModel)
		}
	case KindTimeOfUse:
		rates := m.TimeOfUse.Data()
		if rates.Base < 0 {
			return fmt.Errorf("%w: base rate must be >= 0", ErrInvalidPricingModel)
		}
		for _, rate := range []*float64{rates.Peak, rates.MidPeak, rates.OffPeak, rates.Weekend} {
			if rate != nil && *rate < 0 {
				return fmt.Errorf("%w: time-of-use rates must be >= 0", ErrInvalidPricingModel)
			}
		}
	case KindTiered:
		if len(m.Tiers) == 0 {
			return fmt.Errorf("%w: at least one tier is required", ErrInvalidPricingModel)
		}
		for i, tier := range m.Tiers {
			if tier.Rate < 0 {
				return fmt.Errorf("%w: tier %d rate must be >= 0", ErrInvalidPricingModel, i)
			}
			if tier.Limit == nil {
				if i != len(m.Tiers)-1 {
					return fmt.Errorf("%w: only the last tier may be unbounded", ErrInvalidPricingModel)
				}
				continue
			}
			if *tier.Limit <= 0 {
				return fmt.Errorf("%w: tier %d limit must be > 0", ErrInvalidPricingModel, i)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPricingModel, m.Kind)
	}
	return nil
}

// Sample is one metered quantity at an instant.
type Sample struct {
	Consumption float64
	At          time.Time
}
