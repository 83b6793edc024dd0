package repository

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
	pkgkafka "FinCast/pkg/kafka"
)

// eventProducer is the part of pkg/kafka.Producer the publisher needs.
type eventProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher writes training events as JSON, keyed by run id so a
// run's events stay ordered within one partition.
type KafkaEventPublisher struct {
	producer eventProducer
	topic    string
}

func NewKafkaEventPublisher(p *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: p, topic: topic}
}

func (k *KafkaEventPublisher) PublishTrainingEvent(ctx context.Context, e models.TrainingEvent) error {
	if err := k.producer.Publish(ctx, k.topic, []byte(e.RunID), e); err != nil {
		return fmt.Errorf("publish training event to %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaEventPublisher) Close() error { return k.producer.Close() }
