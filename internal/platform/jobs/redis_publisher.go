package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketcart/api/internal/repositories"
)

const (
	redisDedupTTL = 48 * time.Hour
)

type redisPublisherClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisEventPublisher fans events out over Redis pub/sub channels named after the event type.
// A dedup key per event id keeps a redelivered outbox entry from being published twice.
type RedisEventPublisher struct {
	client   redisPublisherClient
	prefix   string
	producer string
}

// NewRedisEventPublisher constructs a publisher on an existing go-redis client.
func NewRedisEventPublisher(client redisPublisherClient, channelPrefix, producer string) (*RedisEventPublisher, error) {
	if client == nil {
		return nil, errors.New("redis event publisher: client is required")
	}
	return &RedisEventPublisher{client: client, prefix: channelPrefix, producer: producer}, nil
}

func (p *RedisEventPublisher) Publish(ctx context.Context, entry repositories.OutboxEntry) error {
	body, err := json.Marshal(NewEnvelope(entry, p.producer))
	if err != nil {
		return publishError("redis", entry, err)
	}

	dedup := dedupKey(entry.ID)
	fresh, err := p.client.SetNX(ctx, dedup, "1", redisDedupTTL).Result()
	if err != nil {
		return publishError("redis", entry, err)
	}
	if !fresh {
		return nil
	}

	if err := p.client.Publish(ctx, TopicName(p.prefix, entry.Type), body).Err(); err != nil {
		_ = p.client.Del(ctx, dedup).Err()
		return publishError("redis", entry, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisEventPublisher) Close() error { return nil }

func dedupKey(eventID string) string {
	return "dedup:outbox:" + eventID
}
