package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// keyPrefix namespaces cache entries in a shared Redis instance.
const keyPrefix = "prospector:resolution:"

// opTimeout bounds every Redis round trip so cache reads cannot stall a
// resolution longer than this.
const opTimeout = 2 * time.Second

// redisCache stores msgpack-encoded resolutions with a server-side TTL, so
// expiry needs no client-side bookkeeping.
type redisCache struct {
	client *goredis.Client
	ttl    time.Duration
	logger *log.Logger
}

func newRedisCache(cfg Config, logger *log.Logger) (*redisCache, error) {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return &redisCache{
		client: goredis.NewClient(opts),
		ttl:    cfg.TTL,
		logger: logger.Named("cache"),
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (*types.Resolution, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}

	var res types.Resolution
	if err := msgpack.Unmarshal(data, &res); err != nil {
		c.logger.Warn("dropping undecodable cache entry",
			zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, keyPrefix+key).Err()
		return nil, false, nil
	}
	restoreMetadata(&res)
	return &res, true, nil
}

func (c *redisCache) Put(ctx context.Context, key string, res *types.Resolution) error {
	if !cacheable(res) {
		return ErrNotCacheable
	}
	data, err := msgpack.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set: %w", err)
	}
	return nil
}

func (c *redisCache) Close() error { return c.client.Close() }

var _ Cache = (*redisCache)(nil)
