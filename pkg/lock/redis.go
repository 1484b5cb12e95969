package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token-checked release,
// so a holder whose lease expired cannot free someone else's lock.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder
// can block a key.
func NewRedisLocker(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond, logger: logger}
}

// Acquire polls until the key is set or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("release lock", zap.String("key", redisKey), zap.Error(err))
		}
	}
}
