// Package domain describes usage anomaly advisories. Advisories are informational and are
// never persisted or deduplicated against alert events.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
)

// Advisory reports a day whose usage so far runs well above the trailing daily average.
type Advisory struct {
	HomeID       snowflake.ID `json:"home_id"`
	OwnerID      snowflake.ID `json:"owner_id"`
	HomeName     string       `json:"home_name"`
	Day          time.Time    `json:"day"`
	Today        float64      `json:"today"`
	Average      float64      `json:"average"`
	PercentAbove float64      `json:"percent_above"`
	HistoryDays  int          `json:"history_days"`
	Message      string       `json:"message"`
	RaisedAt     time.Time    `json:"raised_at"`
}

type Detector interface {
	// Check returns nil when there is no history or usage is within bounds.
	Check(ctx context.Context, home scopedomain.Resolved) (*Advisory, error)
	// CheckHomes checks every home, continuing past failures, and joins their errors.
	CheckHomes(ctx context.Context, homes []scopedomain.Resolved) ([]Advisory, error)
}

var (
	ErrNotHome = errors.New("anomaly_scope_not_home")
)
