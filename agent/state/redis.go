package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// RedisBackend stores each thread as a Redis list: RPUSH to append, LRANGE
// to load.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisBackend(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisBackend, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl must be >= 0")
	}
	if keyPrefix == "" {
		keyPrefix = defaultThreadKeyPrefix
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (b *RedisBackend) Load(ctx context.Context, threadID string) ([]contractx.Message, error) {
	encoded, err := b.client.LRange(ctx, b.keyPrefix+threadID, 0, -1).Result()
	if err != nil {
		return nil, storageErr("load thread", err)
	}
	return decodeMessages(encoded)
}

func (b *RedisBackend) Append(ctx context.Context, threadID string, msgs []contractx.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, string(payload))
	}

	key := b.keyPrefix + threadID
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if b.ttl > 0 {
			pipe.Expire(ctx, key, b.ttl)
		}
		return nil
	})
	if err != nil {
		return storageErr("append thread", err)
	}
	return nil
}
