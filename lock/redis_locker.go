package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultRetryInterval is the pause between contended acquire attempts
const DefaultRetryInterval = 50 * time.Millisecond

// releaseScript deletes the key only while it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release
type RedisLocker struct {
	client        *redis.Client
	prefix        string
	retryInterval time.Duration
}

// NewRedisLocker creates a locker whose keys are namespaced by prefix
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client:        client,
		prefix:        prefix,
		retryInterval: DefaultRetryInterval,
	}
}

// WithRetryInterval overrides the pause between acquire attempts
func (l *RedisLocker) WithRetryInterval(d time.Duration) *RedisLocker {
	l.retryInterval = d
	return l
}

// Acquire blocks until key is obtained, wait elapses or ctx is done
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	attempts := 0

	for {
		attempts++
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			if attempts > 1 {
				log.WithFields(log.Fields{
					"key":      key,
					"attempts": attempts,
				}).Debug("Acquired contended lock")
			}
			return &redisLease{client: l.client, key: key, fullKey: fullKey, token: token}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			log.WithFields(log.Fields{
				"key":      key,
				"wait":     wait,
				"attempts": attempts,
			}).Warn("Lock acquisition timed out")
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, key, wait)
		}

		pause := l.retryInterval
		if pause > remaining {
			pause = remaining
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-time.After(pause):
		}
	}
}

type redisLease struct {
	client  *redis.Client
	key     string
	fullKey string
	token   string
}

func (l *redisLease) Key() string {
	return l.key
}

// Release frees the key if this lease still owns it
func (l *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.fullKey}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	return nil
}
