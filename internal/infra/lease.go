package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLease is a best-effort distributed lease used to keep sweep cycles
// of several worker instances from overlapping. Correctness never depends on
// it; it only avoids duplicate work.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisLease binds a lease key to a unique owner token for this process.
func NewRedisLease(client *redis.Client, key string) *RedisLease {
	return &RedisLease{client: client, key: key, owner: uuid.NewString()}
}

// Acquire tries to take the lease for ttl. It returns false when another
// owner holds it.
func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// Release gives the lease back if this owner still holds it.
func (l *RedisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
