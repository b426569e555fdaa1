// Package domain contains the read models for metered energy usage.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageReading is one immutable sensor sample. DeviceID is nil for whole-home meters.
type UsageReading struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	HomeID      snowflake.ID  `gorm:"not null" json:"home_id"`
	DeviceID    *snowflake.ID `json:"device_id,omitempty"`
	Consumption float64       `gorm:"not null" json:"consumption"` // kWh
	Power       float64       `gorm:"not null" json:"power"`       // W
	Cost        float64       `gorm:"not null" json:"cost"`
	RecordedAt  time.Time     `gorm:"not null" json:"recorded_at"`
}

// TableName sets the database table name.
func (UsageReading) TableName() string { return "usage_readings" }

// Aggregate summarizes a scope over [WindowStart, WindowEnd].
type Aggregate struct {
	TotalConsumption float64   `json:"total_consumption"`
	TotalCost        float64   `json:"total_cost"`
	SampleCount      int       `json:"sample_count"`
	WindowStart      time.Time `json:"window_start"`
	WindowEnd        time.Time `json:"window_end"`
}

// DailyTotal is the consumption of one local calendar day.
type DailyTotal struct {
	Day         time.Time `json:"day"`
	Consumption float64   `json:"consumption"`
	SampleCount int       `json:"sample_count"`
}
