package notification

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/wattwatch/internal/config"
	obsmetrics "github.com/smallbiznis/wattwatch/internal/observability/metrics"
	"github.com/smallbiznis/wattwatch/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Redis     *redis.Client                  `optional:"true"`
	Limiter   *ratelimit.NotificationLimiter `optional:"true"`
	Metrics   *obsmetrics.Metrics            `optional:"true"`
}

// New selects the broker publisher named by the notification driver setting.
func New(p Params) (Publisher, error) {
	log := p.Log.Named("notification")
	cfg := p.Config.Notification

	var next Publisher
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", DriverNone:
		next = NewNopPublisher()
	case DriverRedis:
		pub, err := NewRedisPublisher(p.Redis, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		next = pub
	case DriverKafka:
		pub, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return pub.Close()
			},
		})
		next = pub
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	log.Info("notification publisher configured", zap.String("driver", next.Driver()))
	return newDispatcher(next, p.Limiter, p.Metrics, log), nil
}
