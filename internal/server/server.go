package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/wattwatch/internal/alert/domain"
	"github.com/smallbiznis/wattwatch/internal/config"
	"github.com/smallbiznis/wattwatch/internal/observability"
	obsmiddleware "github.com/smallbiznis/wattwatch/internal/observability/logger"
	obstracing "github.com/smallbiznis/wattwatch/internal/observability/tracing"
	"github.com/smallbiznis/wattwatch/internal/scheduler"
	scopedomain "github.com/smallbiznis/wattwatch/internal/scope/domain"
	usagedomain "github.com/smallbiznis/wattwatch/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine    *gin.Engine
	cfg       config.Config
	alertSvc  alertdomain.Service
	usageSvc  usagedomain.Service
	scopes    scopedomain.Resolver
	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin       *gin.Engine
	Cfg       config.Config
	AlertSvc  alertdomain.Service
	UsageSvc  usagedomain.Service
	Scopes    scopedomain.Resolver
	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:    p.Gin,
		cfg:       p.Cfg,
		alertSvc:  p.AlertSvc,
		usageSvc:  p.UsageSvc,
		scopes:    p.Scopes,
		scheduler: p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Evaluation --------
	api.POST("/alerts/evaluate", s.EvaluateAll)

	// -------- Alert rules --------
	api.POST("/alert-rules", s.CreateAlertRule)
	api.GET("/alert-rules/:id", s.GetAlertRule)
	api.PATCH("/alert-rules/:id", s.UpdateAlertRule)
	api.DELETE("/alert-rules/:id", s.DeactivateAlertRule)
	api.POST("/alert-rules/:id/evaluate", s.EvaluateAlertRule)
	api.POST("/alert-rules/:id/test", s.TestAlertRule)

	// -------- Triggered events --------
	api.GET("/alert-events", s.ListAlertEvents)
	api.POST("/alert-events/:id/read", s.MarkAlertEventRead)
	api.POST("/alert-events/:id/resolve", s.MarkAlertEventResolved)

	// -------- Usage --------
	api.GET("/homes/:id/usage", s.GetHomeUsage)
	api.GET("/devices/:id/usage", s.GetDeviceUsage)

	// -------- Scheduler --------
	api.POST("/scheduler/run", s.RunSchedulerTick)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
