package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// Guard rejects a toggle while the same cell is already being toggled.
type Guard interface {
	// Acquire returns shared.ErrBusy if key is held. The returned release
	// must be called on every exit path.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// NoopGuard never blocks.
type NoopGuard struct{}

// Acquire always succeeds.
func (NoopGuard) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// DefaultGuardTTL bounds how long a crashed request can hold a cell.
const DefaultGuardTTL = 10 * time.Second

// releaseScript deletes the key only if it still holds our token, so an
// expired guard never frees a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard implements Guard with SET NX PX.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisGuard returns a guard over client. A nil client yields a NoopGuard.
func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) Guard {
	if client == nil {
		return NoopGuard{}
	}
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGuard{client: client, ttl: ttl, logger: logger}
}

// Acquire takes key for the guard TTL.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("rbac: acquire guard: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrBusy, key)
	}
	return func() {
		// The request context may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err(); err != nil {
			g.logger.Warn("release toggle guard", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
