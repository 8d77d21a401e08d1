package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/callino/pos-hobex-bridge/pkg/redis"
)

// redisLineLocker serializes payment attempts per line with a redis SetNX
// lock. The TTL bounds how long a crashed attempt can block the line.
type redisLineLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLineLocker builds a redis-backed per-line lock.
func NewLineLocker(client *redis.Client, ttl time.Duration) LineLocker {
	return &redisLineLocker{client: client, ttl: ttl}
}

func (l *redisLineLocker) Acquire(ctx context.Context, lineID uuid.UUID) (bool, error) {
	return l.client.SetNX(ctx, l.client.LineLockKey(lineID.String()), "1", l.ttl)
}

func (l *redisLineLocker) Release(ctx context.Context, lineID uuid.UUID) error {
	return l.client.Del(ctx, l.client.LineLockKey(lineID.String()))
}
