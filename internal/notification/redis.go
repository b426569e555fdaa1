package notification

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

type redisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) (Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is not configured", ErrDriverUnavailable)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: redis channel is required", ErrDriverUnavailable)
	}
	return &redisPublisher{client: client, channel: channel}, nil
}

func (p *redisPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

func (p *redisPublisher) Driver() string { return DriverRedis }
