package cache

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// entry is the on-disk cache record.
type entry struct {
	Filename   string            `msgpack:"filename"`
	Resolution *types.Resolution `msgpack:"resolution"`
	CachedAt   time.Time         `msgpack:"cached_at"`
}

// fileCache stores one msgpack-encoded entry per key under Dir. The file
// name is an fnv-64a hash of the key so arbitrary normalized names map to
// safe paths.
type fileCache struct {
	dir    string
	ttl    time.Duration
	logger *log.Logger
}

func newFileCache(cfg Config, logger *log.Logger) (*fileCache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("file cache requires a directory")
	}
	if err := iox.EnsureDir(cfg.Dir); err != nil {
		return nil, err
	}
	return &fileCache{dir: cfg.Dir, ttl: cfg.TTL, logger: logger.Named("cache")}, nil
}

func (c *fileCache) path(key string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return filepath.Join(c.dir, fmt.Sprintf("%016x.msgpack", h.Sum64()))
}

func (c *fileCache) Get(_ context.Context, key string) (*types.Resolution, bool, error) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var e entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		// Undecodable entries are dropped, not surfaced: the cache is
		// advisory and a miss just re-runs the search.
		c.logger.Warn("dropping undecodable cache entry",
			zap.String("key", key), zap.Error(err))
		_ = os.Remove(path)
		return nil, false, nil
	}

	if e.Filename != key || time.Since(e.CachedAt) > c.ttl {
		_ = os.Remove(path)
		return nil, false, nil
	}
	restoreMetadata(e.Resolution)
	return e.Resolution, true, nil
}

func (c *fileCache) Put(_ context.Context, key string, res *types.Resolution) error {
	if !cacheable(res) {
		return ErrNotCacheable
	}
	data, err := msgpack.Marshal(entry{Filename: key, Resolution: res, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return iox.WriteFileAtomic(c.path(key), data, 0o644)
}

func (c *fileCache) Close() error { return nil }

var _ Cache = (*fileCache)(nil)
