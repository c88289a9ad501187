package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketcart/api/internal/platform/firestore"
	"github.com/marketcart/api/internal/repositories"
)

const outboxCollection = "outbox"

// OutboxRepository stores pending domain events next to the aggregates that emitted them.
type OutboxRepository struct {
	base *pfirestore.BaseRepository[outboxDocument]
}

// NewOutboxRepository constructs a Firestore-backed outbox.
func NewOutboxRepository(provider *pfirestore.Provider) (*OutboxRepository, error) {
	if provider == nil {
		return nil, errors.New("outbox repository requires firestore provider")
	}
	return &OutboxRepository{
		base: pfirestore.NewBaseRepository[outboxDocument](provider, outboxCollection, nil, nil),
	}, nil
}

// Append creates the entry; joins the caller's transaction when ctx carries one.
func (r *OutboxRepository) Append(ctx context.Context, entry repositories.OutboxEntry) error {
	_, err := r.base.Create(ctx, entry.ID, outboxDocument{
		Type:        entry.Type,
		AggregateID: entry.AggregateID,
		ActorID:     entry.ActorID,
		Payload:     entry.Payload,
		Status:      string(repositories.OutboxPending),
		OccurredAt:  entry.OccurredAt.UTC(),
	})
	return err
}

func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]repositories.OutboxEntry, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(repositories.OutboxPending)).OrderBy("occurredAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]repositories.OutboxEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toEntry(doc.ID))
	}
	return entries, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, entryID string, at time.Time) error {
	_, err := r.base.Update(ctx, entryID, []firestore.Update{
		{Path: "status", Value: string(repositories.OutboxDelivered)},
		{Path: "deliveredAt", Value: at.UTC()},
	})
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, entryID string, cause string, at time.Time, deadLetter bool) error {
	updates := []firestore.Update{
		{Path: "attempts", Value: firestore.Increment(1)},
		{Path: "lastError", Value: cause},
		{Path: "lastAttemptAt", Value: at.UTC()},
	}
	if deadLetter {
		updates = append(updates, firestore.Update{Path: "status", Value: string(repositories.OutboxDead)})
	}
	_, err := r.base.Update(ctx, entryID, updates)
	return err
}

type outboxDocument struct {
	Type          string     `firestore:"type"`
	AggregateID   string     `firestore:"aggregateId"`
	ActorID       string     `firestore:"actorId,omitempty"`
	Payload       []byte     `firestore:"payload"`
	Status        string     `firestore:"status"`
	Attempts      int        `firestore:"attempts"`
	LastError     string     `firestore:"lastError,omitempty"`
	OccurredAt    time.Time  `firestore:"occurredAt"`
	LastAttemptAt *time.Time `firestore:"lastAttemptAt,omitempty"`
	DeliveredAt   *time.Time `firestore:"deliveredAt,omitempty"`
}

func (d outboxDocument) toEntry(id string) repositories.OutboxEntry {
	return repositories.OutboxEntry{
		ID:          id,
		Type:        d.Type,
		AggregateID: d.AggregateID,
		ActorID:     d.ActorID,
		Payload:     d.Payload,
		Status:      repositories.OutboxStatus(d.Status),
		Attempts:    d.Attempts,
		LastError:   d.LastError,
		OccurredAt:  d.OccurredAt,
		DeliveredAt: d.DeliveredAt,
	}
}

var _ repositories.OutboxRepository = (*OutboxRepository)(nil)
