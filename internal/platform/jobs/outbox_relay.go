package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/marketcart/api/internal/platform/observability"
	"github.com/marketcart/api/internal/repositories"
)

const (
	defaultRelayInterval    = 2 * time.Second
	defaultRelayBatchSize   = 50
	defaultRelayMaxAttempts = 10
)

// OutboxRelayDeps wires the relay's collaborators.
type OutboxRelayDeps struct {
	Outbox      repositories.OutboxRepository
	Publisher   EventPublisher
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Clock       func() time.Time
	Metrics     *observability.Metrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// OutboxRelay drains pending outbox entries to the configured publisher. Delivery is at least once.
type OutboxRelay struct {
	outbox      repositories.OutboxRepository
	publisher   EventPublisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
	metrics     *observability.Metrics
	logger      func(ctx context.Context, event string, fields map[string]any)
}

// NewOutboxRelay validates deps and applies defaults.
func NewOutboxRelay(deps OutboxRelayDeps) (*OutboxRelay, error) {
	if deps.Outbox == nil {
		return nil, errors.New("outbox relay: outbox repository is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("outbox relay: publisher is required")
	}
	relay := &OutboxRelay{
		outbox:      deps.Outbox,
		publisher:   deps.Publisher,
		interval:    deps.Interval,
		batchSize:   deps.BatchSize,
		maxAttempts: deps.MaxAttempts,
		now:         deps.Clock,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	if relay.interval <= 0 {
		relay.interval = defaultRelayInterval
	}
	if relay.batchSize <= 0 {
		relay.batchSize = defaultRelayBatchSize
	}
	if relay.maxAttempts <= 0 {
		relay.maxAttempts = defaultRelayMaxAttempts
	}
	if relay.now == nil {
		relay.now = time.Now
	}
	if relay.logger == nil {
		relay.logger = func(context.Context, string, map[string]any) {}
	}
	return relay, nil
}

// Run flushes on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger(ctx, "outbox.flush.failed", map[string]any{"error": err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many entries were delivered.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	entries, err := r.outbox.ListPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if pubErr := r.publisher.Publish(ctx, entry); pubErr != nil {
			dead := entry.Attempts+1 >= r.maxAttempts
			r.metrics.OutboxFailed(ctx, entry.Type)
			r.logger(ctx, "outbox.publish.failed", map[string]any{
				"eventId":  entry.ID,
				"type":     entry.Type,
				"attempts": entry.Attempts + 1,
				"dead":     dead,
				"error":    pubErr,
			})
			if err := r.outbox.MarkFailed(ctx, entry.ID, pubErr.Error(), r.now(), dead); err != nil {
				return delivered, err
			}
			continue
		}
		if err := r.outbox.MarkDelivered(ctx, entry.ID, r.now()); err != nil {
			return delivered, err
		}
		r.metrics.OutboxDelivered(ctx, entry.Type)
		delivered++
	}
	return delivered, nil
}
