package state

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Leaser grants one process at a time exclusive use of a thread. The
// ThreadStore's in-process lock serializes turns inside an instance; a lease
// extends that to every instance sharing the backend.
type Leaser interface {
	Lease(ctx context.Context, threadID string) (release func(), err error)
}

const (
	DefaultLeaseTTL = 5 * time.Minute

	defaultLeasePoll    = 50 * time.Millisecond
	leaseReleaseTimeout = 5 * time.Second

	defaultLeaseKeyPrefix = "billing:lease:"
)

// compare-and-delete, so an expired lease taken over by another holder is
// never removed by the previous one.
const releaseLeaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

func waitLease(ctx context.Context, poll time.Duration, try func() (bool, error)) error {
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func leaseKey(prefix, threadID string) (string, error) {
	if strings.TrimSpace(threadID) == "" {
		return "", ErrInvalidThread
	}
	if prefix == "" {
		prefix = defaultLeaseKeyPrefix
	}
	return prefix + threadID, nil
}

// RedisLeaser holds leases as SET NX PX keys.
type RedisLeaser struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	poll      time.Duration
	release   *redis.Script
}

func NewRedisLeaser(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisLeaser, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &RedisLeaser{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		poll:      defaultLeasePoll,
		release:   redis.NewScript(releaseLeaseScript),
	}, nil
}

func (l *RedisLeaser) Lease(ctx context.Context, threadID string) (func(), error) {
	key, err := leaseKey(l.keyPrefix, threadID)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()

	err = waitLease(ctx, l.poll, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return false, storageErr("acquire thread lease", err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
		defer cancel()
		if err := l.release.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("thread lease not released; it will expire")
		}
	}, nil
}

// UpstashLeaser holds leases through the Upstash REST API.
type UpstashLeaser struct {
	backend   *UpstashBackend
	keyPrefix string
	ttl       time.Duration
	poll      time.Duration
}

func NewUpstashLeaser(backend *UpstashBackend, keyPrefix string, ttl time.Duration) (*UpstashLeaser, error) {
	if backend == nil {
		return nil, errors.New("upstash backend is required")
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &UpstashLeaser{backend: backend, keyPrefix: keyPrefix, ttl: ttl, poll: defaultLeasePoll}, nil
}

func (l *UpstashLeaser) Lease(ctx context.Context, threadID string) (func(), error) {
	key, err := leaseKey(l.keyPrefix, threadID)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	px := strconv.FormatInt(l.ttl.Milliseconds(), 10)

	err = waitLease(ctx, l.poll, func() (bool, error) {
		resp, err := l.backend.exec(ctx, []any{"SET", key, token, "NX", "PX", px})
		if err != nil {
			return false, storageErr("acquire thread lease", err)
		}
		return bytes.Equal(bytes.TrimSpace(resp.Result), []byte(`"OK"`)), nil
	})
	if err != nil {
		return nil, err
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
		defer cancel()
		if _, err := l.backend.exec(rctx, []any{"EVAL", releaseLeaseScript, 1, key, token}); err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("thread lease not released; it will expire")
		}
	}, nil
}
