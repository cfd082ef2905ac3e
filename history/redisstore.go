package history

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store, adapted from the pack's
// internal/infra GoRedisAdapter (Generativebots-ocx-backend-go-svc): the
// same context-timeout-per-call discipline, wrapping go-redis/v9's native
// list and TTL commands instead of hand-rolling either.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, timeout: 3 * time.Second}
}

func (r *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *RedisStore) ListPushFront(ctx context.Context, key string, value string) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.LPush(cctx, key, value).Err()
}

func (r *RedisStore) ListTrim(ctx context.Context, key string, maxLen int) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.LTrim(cctx, key, 0, int64(maxLen-1)).Err()
}

func (r *RedisStore) ListRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.LRange(cctx, key, int64(start), int64(stop)).Result()
}

func (r *RedisStore) SetWithTTL(ctx context.Context, key string, value string, ttlSeconds int) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Set(cctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
}

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.client.Keys(cctx, pattern).Result()
}

var _ Store = (*RedisStore)(nil)
