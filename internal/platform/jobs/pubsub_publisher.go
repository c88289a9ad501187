package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/marketcart/api/internal/repositories"
)

// PubSubEventPublisher publishes outbox entries to one Pub/Sub topic per event type.
type PubSubEventPublisher struct {
	client *pubsub.Client
	prefix string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubEventPublisher constructs a Pub/Sub backed publisher. Topics are expected to exist.
func NewPubSubEventPublisher(client *pubsub.Client, topicPrefix string) (*PubSubEventPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub event publisher: client is required")
	}
	return &PubSubEventPublisher{
		client: client,
		prefix: topicPrefix,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends the raw payload as message data with the envelope fields as attributes.
func (p *PubSubEventPublisher) Publish(ctx context.Context, entry repositories.OutboxEntry) error {
	if p == nil || p.client == nil {
		return errors.New("pubsub event publisher: not initialised")
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", entry.ID)
	setAttr(attrs, "eventType", entry.Type)
	setAttr(attrs, "aggregateId", entry.AggregateID)
	setAttr(attrs, "actorId", entry.ActorID)
	if !entry.OccurredAt.IsZero() {
		attrs["occurredAt"] = entry.OccurredAt.UTC().Format(time.RFC3339Nano)
	}

	result := p.topic(entry.Type).Publish(ctx, &pubsub.Message{
		Data:       entry.Payload,
		Attributes:  attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return publishError("pubsub", entry, err)
	}
	return nil
}

// Close flushes and stops every topic handle opened by Publish.
func (p *PubSubEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.topics = make(map[string]*pubsub.Topic)
	return nil
}

func (p *PubSubEventPublisher) topic(eventType string) *pubsub.Topic {
	name := pubsubTopicID(TopicName(p.prefix, eventType))
	p.mu.Lock()
	defer p.mu.Unlock()
	if topic, ok := p.topics[name]; ok {
		return topic
	}
	topic := p.client.Topic(name)
	p.topics[name] = topic
	return topic
}

// pubsubTopicID maps dots to dashes so the id stays readable in the console.
func pubsubTopicID(name string) string {
	return strings.ReplaceAll(name, ".", "-")
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
