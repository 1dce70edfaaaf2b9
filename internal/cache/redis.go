package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/fritter-graph/internal/config"
)

// ViewCountTTL is how long a cached view counter lives without access.
const ViewCountTTL = time.Hour

// raiseTo stores ARGV[1] unless the cached counter is already at least
// that high. Ledger counts only grow, so concurrent writers converge on the
// latest count no matter in which order their writes land.
var raiseTo = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]))
local n = tonumber(ARGV[1])
if cur == nil or n > cur then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
	return n
end
redis.call("EXPIRE", KEYS[1], ARGV[2])
return cur
`)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	client := redis.NewClient(opts)
	client.AddHook(&MetricsHook{})
	return &RedisCache{Client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// KeyForViewCount generates Redis key for a content item's view count
func (c *RedisCache) KeyForViewCount(itemID uint64) string {
	return fmt.Sprintf("views:count:%d", itemID)
}

// GetViewCount returns the cached count for itemID. ok is false on a miss.
func (c *RedisCache) GetViewCount(ctx context.Context, itemID uint64) (count int64, ok bool, err error) {
	key := c.KeyForViewCount(itemID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil // cache miss
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil // treat junk as a miss
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, ViewCountTTL).Err()
	return n, true, nil
}

// RaiseViewCount stores count for itemID unless a higher count is already
// cached, and returns the value left in the cache.
func (c *RedisCache) RaiseViewCount(ctx context.Context, itemID uint64, count int64) (int64, error) {
	ttl := int(ViewCountTTL / time.Second)
	return raiseTo.Run(ctx, c.Client, []string{c.KeyForViewCount(itemID)}, count, ttl).Int64()
}

// DropViewCount forgets the cached counter for itemID.
func (c *RedisCache) DropViewCount(ctx context.Context, itemID uint64) error {
	return c.Del(ctx, c.KeyForViewCount(itemID))
}
