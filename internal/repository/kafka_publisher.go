package repository

import (
	"context"

	"Indicium/internal/domain/models"
	domrepo "Indicium/internal/domain/repository"
)

// messageWriter is satisfied by *kafka.Producer.
type messageWriter interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher emits refresh events keyed by snapshot source.
type KafkaPublisher struct {
	producer messageWriter
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer messageWriter, topic string) domrepo.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishRefresh(ctx context.Context, ev models.RefreshEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Source), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopPublisher is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishRefresh(context.Context, models.RefreshEvent) error { return nil }
func (NoopPublisher) Close() error                                              { return nil }
