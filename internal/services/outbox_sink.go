package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/marketcart/api/internal/domain"
	"github.com/marketcart/api/internal/repositories"
)

// OutboxEventSink serialises typed payloads into outbox entries.
type OutboxEventSink struct {
	outbox repositories.OutboxRepository
	newID  func() string
}

// NewOutboxEventSink binds the sink to an outbox repository.
func NewOutboxEventSink(outbox repositories.OutboxRepository) (*OutboxEventSink, error) {
	if outbox == nil {
		return nil, errors.New("outbox sink: outbox repository is required")
	}
	return &OutboxEventSink{
		outbox: outbox,
		newID: func() string {
			return "evt_" + ulid.Make().String()
		},
	}, nil
}

func (s *OutboxEventSink) Emit(ctx context.Context, event domain.Event) error {
	if event.Payload == nil || event.Type() == "" {
		return errors.New("outbox sink: event payload is required")
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("outbox sink: encode %s: %w", event.Type(), err)
	}
	id := strings.TrimSpace(event.ID)
	if id == "" {
		id = s.newID()
	}
	return s.outbox.Append(ctx, repositories.OutboxEntry{
		ID:          id,
		Type:        string(event.Type()),
		AggregateID: event.AggregateID,
		ActorID:     event.ActorID,
		Payload:     payload,
		Status:      repositories.OutboxPending,
		OccurredAt:  event.OccurredAt.UTC(),
	})
}

var _ EventSink = (*OutboxEventSink)(nil)
