package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockNotAcquired is returned when the lock stays held past the retry
// budget.
var ErrLockNotAcquired = errors.New("could not acquire sponsor lock")

// SponsorLocker serializes ledger writers per sponsor. Acquire blocks
// briefly while another writer holds the lock and returns a release
// function on success.
type SponsorLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker implements SponsorLocker with SET NX PX. The token guards
// release so an expired holder cannot delete a successor's lock.
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	maxRetries int
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:     client,
		ttl:        10 * time.Second,
		retryDelay: 100 * time.Millisecond,
		maxRetries: 50,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				current, err := l.client.Get(releaseCtx, key).Result()
				if err == nil && current == token {
					l.client.Del(releaseCtx, key)
				}
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
	return nil, ErrLockNotAcquired
}
