package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverKafka = "kafka"
)

const (
	TypeAlertTriggered  = "alert.triggered"
	TypeAnomalyAdvisory = "anomaly.advisory"
)

var (
	ErrUnknownDriver     = errors.New("unknown_notification_driver")
	ErrDriverUnavailable = errors.New("notification_driver_unavailable")
	ErrThrottled         = errors.New("notification_throttled")
)

// Message is the envelope handed to the broker. Delivery to end users happens downstream.
type Message struct {
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OwnerID    string          `json:"owner_id"`
	Channels   []string        `json:"channels,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into a message envelope.
func NewMessage(kind, key, ownerID string, channels []string, at time.Time, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:       kind,
		Key:        key,
		OwnerID:    ownerID,
		Channels:   channels,
		OccurredAt: at.UTC(),
		Payload:    raw,
	}, nil
}

//go:generate mockgen -destination=mock/publisher_mock.go -package=mock github.com/smallbiznis/wattwatch/internal/notification Publisher

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Driver() string
}

type nopPublisher struct{}

func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Message) error { return nil }

func (nopPublisher) Driver() string { return DriverNone }
