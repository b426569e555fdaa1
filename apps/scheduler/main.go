package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/alert"
	"github.com/smallbiznis/wattwatch/internal/anomaly"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/notification"
	"github.com/smallbiznis/wattwatch/internal/observability"
	"github.com/smallbiznis/wattwatch/internal/pricing"
	"github.com/smallbiznis/wattwatch/internal/ratelimit"
	"github.com/smallbiznis/wattwatch/internal/scheduler"
	"github.com/smallbiznis/wattwatch/internal/scope"
	"github.com/smallbiznis/wattwatch/internal/usage"
	"github.com/smallbiznis/wattwatch/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		notification.Module,

		// Domain services required by scheduler
		scope.Module,
		pricing.Module,
		usage.Module,
		alert.Module,
		anomaly.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
