package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/wattwatch/internal/config"
)

// Config controls the evaluation schedule and per-job budgets.
type Config struct {
	Schedule        string
	LockKey         string
	LockTTL         time.Duration
	EvaluateTimeout time.Duration
	AnomalyTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:        "@hourly",
		LockKey:         "wattwatch:scheduler:tick",
		LockTTL:         10 * time.Minute,
		EvaluateTimeout: 5 * time.Minute,
		AnomalyTimeout:  2 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Schedule: cfg.Scheduler.Schedule,
		LockTTL:  cfg.Scheduler.LockTTL,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaults.Schedule
	}
	if strings.TrimSpace(c.LockKey) == "" {
		c.LockKey = defaults.LockKey
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = defaults.EvaluateTimeout
	}
	if c.AnomalyTimeout <= 0 {
		c.AnomalyTimeout = defaults.AnomalyTimeout
	}
	return c
}
