package service

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/clock"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/notification"
	obsmetrics "github.com/smallbiznis/wattwatch/internal/observability/metrics"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultRetryInitial = 100 * time.Millisecond

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Engine    *config.EngineConfigHolder
	Repo      domain.Repository
	Scopes    scopedomain.Resolver
	Usage     usagedomain.Service
	Publisher notification.Publisher `optional:"true"`
	Metrics   *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	loc       *time.Location
	engine    *config.EngineConfigHolder
	repo      domain.Repository
	scopes    scopedomain.Resolver
	usage     usagedomain.Service
	publisher notification.Publisher
	metrics   *obsmetrics.Metrics

	retryInitial time.Duration
}

func New(p Params) domain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = notification.NewNopPublisher()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("alert.evaluator"),
		genID:        p.GenID,
		clock:        clk,
		loc:          p.Config.Location(),
		engine:       p.Engine,
		repo:         p.Repo,
		scopes:       p.Scopes,
		usage:        p.Usage,
		publisher:    publisher,
		metrics:      p.Metrics,
		retryInitial: defaultRetryInitial,
	}
}
