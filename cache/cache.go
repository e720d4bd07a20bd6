// Package cache maps normalized artifact names to previously successful
// resolutions, with a time-to-live.
//
// Two backends are provided: a file backend (one msgpack-encoded entry per
// key under a cache directory) and a Redis backend. Only found resolutions
// are cache-eligible; everything else is rejected at Put.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// DefaultTTL is the default entry lifetime.
const DefaultTTL = 24 * time.Hour

// ErrNotCacheable is returned by Put for resolutions that are not found.
var ErrNotCacheable = errors.New("only found resolutions are cache-eligible")

// Cache stores successful resolutions keyed by normalized filename.
type Cache interface {
	// Get returns the cached resolution for key and whether it was a fresh
	// hit. A stale or missing entry is (nil, false, nil).
	Get(ctx context.Context, key string) (*types.Resolution, bool, error)

	// Put stores a found resolution under key. Returns ErrNotCacheable for
	// any other status.
	Put(ctx context.Context, key string, res *types.Resolution) error

	// Close releases backend resources.
	Close() error
}

// Config selects and configures a cache backend.
type Config struct {
	// Dir is the file-backend cache directory. Used when RedisURL is empty.
	Dir string
	// RedisURL selects the Redis backend when non-empty
	// (redis://[:password@]host:port[/db]).
	RedisURL string
	// TTL is the entry lifetime (default 24h).
	TTL time.Duration
}

// New builds a cache from config. A Redis URL selects the Redis backend;
// otherwise the file backend is used.
func New(cfg Config, logger *log.Logger) (Cache, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RedisURL != "" {
		return newRedisCache(cfg, logger)
	}
	return newFileCache(cfg, logger)
}

func cacheable(res *types.Resolution) bool {
	return res != nil && res.Status == types.StatusFound
}

// restoreMetadata re-types metadata values that msgpack decodes as []any,
// so a cached resolution carries the same shapes as a fresh one.
func restoreMetadata(res *types.Resolution) {
	if res == nil || res.Metadata == nil {
		return
	}
	raw, ok := res.Metadata[types.MetaBackendsTried].([]any)
	if !ok {
		return
	}
	tried := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			tried = append(tried, s)
		}
	}
	res.Metadata[types.MetaBackendsTried] = tried
}
