package notification

import (
	"context"
	"fmt"

	obsmetrics "github.com/smallbiznis/wattwatch/internal/observability/metrics"
	"github.com/smallbiznis/wattwatch/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	outcomeSent      = "sent"
	outcomeFailed    = "failed"
	outcomeThrottled = "throttled"
)

type ownerLimiter interface {
	AllowOwner(ctx context.Context, ownerID string) (bool, error)
}

// dispatcher throttles per owner and records the outcome of every publish.
type dispatcher struct {
	next    Publisher
	limiter ownerLimiter
	metrics *obsmetrics.Metrics
	log     *zap.Logger
}

func newDispatcher(next Publisher, limiter *ratelimit.NotificationLimiter, metrics *obsmetrics.Metrics, log *zap.Logger) *dispatcher {
	d := &dispatcher{next: next, metrics: metrics, log: log}
	if limiter != nil {
		d.limiter = limiter
	}
	return d
}

func (d *dispatcher) Publish(ctx context.Context, msg Message) error {
	if d.limiter != nil {
		allowed, err := d.limiter.AllowOwner(ctx, msg.OwnerID)
		if err != nil {
			// Limiter errors fail open.
			d.log.Warn("notification limiter unavailable", zap.Error(err))
		} else if !allowed {
			d.metrics.RecordNotification(ctx, d.next.Driver(), outcomeThrottled)
			d.log.Info("notification throttled",
				zap.String("type", msg.Type),
				zap.String("owner_id", msg.OwnerID),
				zap.String("key", msg.Key),
			)
			return fmt.Errorf("%w: owner %s", ErrThrottled, msg.OwnerID)
		}
	}

	if err := d.next.Publish(ctx, msg); err != nil {
		d.metrics.RecordNotification(ctx, d.next.Driver(), outcomeFailed)
		d.log.Warn("notification publish failed",
			zap.String("driver", d.next.Driver()),
			zap.String("type", msg.Type),
			zap.String("key", msg.Key),
			zap.Error(err),
		)
		return err
	}
	d.metrics.RecordNotification(ctx, d.next.Driver(), outcomeSent)
	return nil
}

func (d *dispatcher) Driver() string { return d.next.Driver() }
