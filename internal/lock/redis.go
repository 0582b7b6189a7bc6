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

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a lease lock shared by every instance talking to the same Redis.
// Waiters in one process queue on a Local first so only one of them polls.
type Redis struct {
	rdb   *redis.Client
	local *Local
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
	log   *zap.Logger
}

func NewRedis(rdb *redis.Client, ttl, wait time.Duration, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, local: NewLocal(), ttl: ttl, wait: wait, retry: 25 * time.Millisecond, log: log}
}

func (r *Redis) key(k string) string { return "facility-lock:" + k }

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if r.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}

	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	rk := r.key(key)
	for {
		ok, err := r.rdb.SetNX(ctx, rk, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			unlockLocal()
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ErrTimeout
		case <-time.After(r.retry):
		}
	}

	return func() {
		// released with a fresh context; the caller's may already be done
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{rk}, token).Err(); err != nil {
			r.log.Warn("release facility lock", zap.String("key", key), zap.Error(err))
		}
		unlockLocal()
	}, nil
}
