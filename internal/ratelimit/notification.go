package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/wattwatch/internal/config"
)

const keyNotificationOwner = "wattwatch:ratelimit:notify:%s"

// NotificationLimiter throttles outbound notifications per owner.
// A nil limiter allows everything.
type NotificationLimiter struct {
	bucket        *TokenBucket
	ratePerSecond float64
	burst         int
}

func NewNotificationLimiter(cfg config.Config, bucket *TokenBucket) *NotificationLimiter {
	rate := cfg.Notification.OwnerRatePerMinute
	if bucket == nil || rate <= 0 || cfg.Notification.OwnerBurst <= 0 {
		return nil
	}
	return &NotificationLimiter{
		bucket:        bucket,
		ratePerSecond: rate / 60,
		burst:         cfg.Notification.OwnerBurst,
	}
}

func (l *NotificationLimiter) AllowOwner(ctx context.Context, ownerID string) (bool, error) {
	if l == nil {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyNotificationOwner, strings.TrimSpace(ownerID)), l.ratePerSecond, l.burst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
