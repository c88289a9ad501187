package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/marketcart/api/internal/repositories"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher writes events keyed by aggregate id so one order's events stay on one partition.
type KafkaEventPublisher struct {
	writer   kafkaWriter
	prefix   string
	producer string
}

// NewKafkaWriter builds a synchronous writer; the topic is set per message.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewKafkaEventPublisher constructs a publisher on top of writer.
func NewKafkaEventPublisher(writer kafkaWriter, topicPrefix, producer string) (*KafkaEventPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka event publisher: writer is required")
	}
	return &KafkaEventPublisher{writer: writer, prefix: topicPrefix, producer: producer}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, entry repositories.OutboxEntry) error {
	body, err := json.Marshal(NewEnvelope(entry, p.producer))
	if err != nil {
		return publishError("kafka", entry, err)
	}
	msg := kafka.Message{
		Topic: TopicName(p.prefix, entry.Type),
		Key:   []byte(entry.AggregateID),
		Value: body,
		Time:  entry.OccurredAt,
		Headers: []kafka.Header{
			{Key: "eventId", Value: []byte(entry.ID)},
			{Key: "eventType", Value: []byte(entry.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return publishError("kafka", entry, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
