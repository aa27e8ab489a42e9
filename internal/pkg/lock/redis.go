package lock

import (
	"context"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/settlement-backend-go/internal/domain/settlement"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another request is left alone.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// RedisGuard marks an idempotency key as in flight with SET NX. If Redis is
// unreachable the guard lets the request through and the unique key in
// PostgreSQL decides.
type RedisGuard struct {
	client   redis.Cmdable
	prefix   string
	logger   *slog.Logger
	newToken func() string
}

func NewRedisGuard(client redis.Cmdable, prefix string, logger *slog.Logger) *RedisGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGuard{
		client:   client,
		prefix:   prefix,
		logger:   logger,
		newToken: func() string { return uuid.NewString() },
	}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := g.prefix + key
	token := g.newToken()

	ok, err := g.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		g.logger.Warn("in-flight guard unavailable, continuing without it", "key", lockKey, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, settlement.ErrSettlementInProgress
	}

	return func() {
		// Release must run even when the request context is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := g.client.Eval(releaseCtx, releaseScript, []string{lockKey}, token).Err(); err != nil {
			g.logger.Warn("failed to release in-flight guard", "key", lockKey, "error", err)
		}
	}, nil
}

// NoopGuard is used when Redis is not configured.
type NoopGuard struct{}

func (NoopGuard) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
