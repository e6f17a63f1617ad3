package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/regmarket/namereg/internal/core/domain"
)

// InvalidationChannel is the pub/sub channel other instances listen on so
// every node drops its local entry when a target changes anywhere.
const InvalidationChannel = "namereg:invalidation"

// Redis is the shared second cache level. Entries survive process restarts
// and are visible to every instance pointed at the same server.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache layer.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client}
}

// Get retrieves a cached resolve target. It returns ("", false) on a miss or
// any transport error; callers fall through to the authoritative store.
func (r *Redis) Get(ctx context.Context, key string) (domain.Account, bool) {
	val, err := r.client.Get(ctx, "resolve:"+key).Result()
	if err != nil {
		return "", false
	}
	return domain.Account(val), true
}

// Set stores a resolve target with TTL. Errors are ignored, the cache is
// best-effort.
func (r *Redis) Set(ctx context.Context, key string, target domain.Account, ttl time.Duration) {
	r.client.Set(ctx, "resolve:"+key, string(target), ttl)
}

// Invalidate removes the shared entry and broadcasts the key so every
// instance evicts its local copy.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, "resolve:"+key).Err(); err != nil {
		return err
	}
	return r.client.Publish(ctx, InvalidationChannel, key).Err()
}

// Subscribe returns a channel of invalidation messages. The message payload
// is the hex name key to evict.
func (r *Redis) Subscribe(ctx context.Context) <-chan *redis.Message {
	pubsub := r.client.Subscribe(ctx, InvalidationChannel)
	return pubsub.Channel()
}

// Ping checks connectivity to the Redis server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
