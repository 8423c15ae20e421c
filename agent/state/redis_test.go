package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestRedisBackendRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	b, err := NewRedisBackend(client, "test:thread:", time.Minute)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, "test:thread:"+id) })

	require.NoError(t, b.Append(ctx, id, []contractx.Message{contractx.UserMessage("one")}))
	require.NoError(t, b.Append(ctx, id, []contractx.Message{contractx.AssistantMessage("two")}))

	msgs, err := b.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "two", msgs[1].Content)

	ttl, err := client.TTL(ctx, "test:thread:"+id).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}

func TestRedisLeaserExcludesSecondHolder(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	l, err := NewRedisLeaser(client, "test:lease:", time.Minute)
	require.NoError(t, err)

	id := uuid.NewString()
	release, err := l.Lease(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Lease(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	again, err := l.Lease(context.Background(), id)
	require.NoError(t, err)
	again()
}
