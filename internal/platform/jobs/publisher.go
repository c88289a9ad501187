package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/marketcart/api/internal/repositories"
)

const envelopeVersion = 1

// EventPublisher delivers relayed outbox entries to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, entry repositories.OutboxEntry) error
	Close() error
}

// Envelope is the broker-neutral wire format for relayed events.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	AggregateID  string          `json:"aggregate_id,omitempty"`
	ActorID      string          `json:"actor_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an outbox entry for transports that carry a single opaque body.
func NewEnvelope(entry repositories.OutboxEntry, producer string) Envelope {
	payload := json.RawMessage(entry.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		EventID:      entry.ID,
		EventType:    entry.Type,
		EventVersion: envelopeVersion,
		OccurredAt:   entry.OccurredAt.UTC(),
		Producer:     producer,
		AggregateID:  entry.AggregateID,
		ActorID:      entry.ActorID,
		Payload:      payload,
	}
}

// TopicName joins the configured prefix and event type, e.g. "marketcart.order_success".
func TopicName(prefix, eventType string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// LogEventPublisher writes events to the structured log. Used locally when no broker is configured.
type LogEventPublisher struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewLogEventPublisher constructs a log-only publisher.
func NewLogEventPublisher(logger func(ctx context.Context, event string, fields map[string]any)) *LogEventPublisher {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LogEventPublisher{logger: logger}
}

func (p *LogEventPublisher) Publish(ctx context.Context, entry repositories.OutboxEntry) error {
	p.logger(ctx, "events.published", map[string]any{
		"eventId":     entry.ID,
		"type":        entry.Type,
		"aggregateId": entry.AggregateID,
		"payload":     string(entry.Payload),
	})
	return nil
}

func (p *LogEventPublisher) Close() error { return nil }

func publishError(transport string, entry repositories.OutboxEntry, err error) error {
	return fmt.Errorf("%s: publish %s %s: %w", transport, entry.Type, entry.ID, err)
}
