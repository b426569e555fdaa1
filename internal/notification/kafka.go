package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: at least one kafka broker is required", ErrDriverUnavailable)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: kafka topic is required", ErrDriverUnavailable)
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // same owner, same partition
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
			MaxAttempts:  3,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.OwnerID),
		Value: data,
		Time:  msg.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
			{Key: "dedup_key", Value: []byte(msg.Key)},
		},
	})
}

func (p *KafkaPublisher) Driver() string { return DriverKafka }

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
