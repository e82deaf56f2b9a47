package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobatlas/internal/model"
)

// negativeSentinel marks a cached "unresolvable" entry in Redis.
const negativeSentinel = "null"

// RedisCache is a durable pass-through Cache backed by Redis. It follows the
// same contract as MemoryCache: a negative entry is stored explicitly and
// returned as (nil, true, nil).
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache parses redisURL, verifies connectivity and returns the
// cache. A zero ttl keeps entries forever (one cache generation).
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "geocode: redis ping")
	}

	return &RedisCache{client: client, prefix: "geocode:", ttl: ttl}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*model.Coordinates, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "geocode: redis get")
	}

	if val == negativeSentinel {
		return nil, true, nil
	}

	var coords model.Coordinates
	if err := json.Unmarshal([]byte(val), &coords); err != nil {
		return nil, false, eris.Wrap(err, "geocode: decode cached entry")
	}
	return &coords, true, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, coords *model.Coordinates) error {
	val := negativeSentinel
	if coords != nil {
		b, err := json.Marshal(coords)
		if err != nil {
			return eris.Wrap(err, "geocode: encode entry")
		}
		val = string(b)
	}

	// SetNX keeps entries immutable within a generation.
	if err := c.client.SetNX(ctx, c.prefix+key, val, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "geocode: redis set")
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
