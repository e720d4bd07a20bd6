// Package resolver implements the search coordinator: the ordered
// multi-backend walk, result caching, confidence gating, and attempt
// recording that together turn an artifact reference into a resolution.
package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/prospect-io/prospector/backend"
	"github.com/prospect-io/prospector/cache"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/metrics"
	"github.com/prospect-io/prospector/state"
	"github.com/prospect-io/prospector/types"
	"github.com/prospect-io/prospector/validate"
)

// DefaultRequestDelay is the minimum pause between consecutive non-cached
// resolutions, respecting upstream registry rate limits.
const DefaultRequestDelay = 2 * time.Second

// Options configures a Coordinator. Cache, Store, and Metrics are optional;
// a nil Cache disables caching and a nil Store disables attempt recording.
type Options struct {
	Cache        cache.Cache
	Store        *state.Store
	Metrics      *metrics.Collector
	Logger       *log.Logger
	RequestDelay time.Duration
}

// Coordinator orchestrates an ordered list of backends per request.
// Backend calls are issued sequentially, never in parallel, to keep
// attempt-history ordering deterministic and registry load bounded.
type Coordinator struct {
	backends []backend.Backend
	byName   map[string]backend.Backend
	cache    cache.Cache
	store    *state.Store
	metrics  *metrics.Collector
	logger   *log.Logger
	delay    time.Duration

	// sleep is a seam for tests; production sleeps ctx-aware.
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a Coordinator over the given ordered backend list.
func New(backends []backend.Backend, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.RequestDelay <= 0 {
		opts.RequestDelay = DefaultRequestDelay
	}

	byName := make(map[string]backend.Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	return &Coordinator{
		backends: backends,
		byName:   byName,
		cache:    opts.Cache,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("resolver"),
		delay:    opts.RequestDelay,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Resolve locates one artifact. The returned resolution is never nil. The
// error is non-nil only for state-store persistence failures, which signal
// a possible durability violation the caller must react to; every search
// failure is expressed in the resolution itself.
func (c *Coordinator) Resolve(ctx context.Context, ref types.ArtifactRef, order ...string) (*types.Resolution, error) {
	outcome := validate.Check(ref.Filename)
	if !outcome.OK {
		c.logger.Warn("rejected invalid filename",
			zap.String("filename", ref.Filename), zap.String("reason", outcome.Reason))
		res := &types.Resolution{
			Status:      types.StatusInvalidFilename,
			Filename:    ref.Filename,
			TypeHint:    ref.TypeHint,
			ErrorDetail: outcome.Reason,
		}
		c.metrics.IncResolution(res.Status)
		return res, nil
	}

	normalized := ref
	normalized.Filename = outcome.Normalized

	if c.cache != nil {
		if cached, hit, err := c.cache.Get(ctx, normalized.Filename); err != nil {
			c.logger.Warn("cache read failed", zap.Error(err))
		} else if hit {
			c.metrics.IncCacheHit()
			c.metrics.IncResolution(cached.Status)
			cached.SetMeta(types.MetaCacheHit, true)
			return cached, nil
		}
		c.metrics.IncCacheMiss()
	}

	res, err := c.walk(ctx, normalized, order)
	c.metrics.IncResolution(res.Status)
	return res, err
}

// walk runs the ordered backend list: stop on found, error, or invalid;
// continue past not_found; remember the best uncertain for the end.
func (c *Coordinator) walk(ctx context.Context, ref types.ArtifactRef, order []string) (*types.Resolution, error) {
	var tried []string
	var firstUncertain *types.Resolution

	for _, b := range c.ordered(order) {
		tried = append(tried, b.Name())
		c.metrics.IncBackendCall(b.Name())

		res := b.Search(ctx, ref)
		c.logger.Debug("backend searched",
			zap.String("backend", b.Name()),
			zap.String("filename", ref.Filename),
			zap.String("status", string(res.Status)))

		switch res.Status {
		case types.StatusFound:
			res.SetMeta(types.MetaBackendsTried, tried)
			return res, c.commitFound(ctx, ref, res)

		case types.StatusError:
			c.metrics.IncBackendError(b.Name())
			res.SetMeta(types.MetaBackendsTried, tried)
			return res, nil

		case types.StatusInvalidFilename:
			res.SetMeta(types.MetaBackendsTried, tried)
			return res, nil

		case types.StatusUncertain:
			// A later backend may still hold an exact match; keep the
			// first uncertain as the fallback answer.
			if firstUncertain == nil {
				firstUncertain = res
			}
		}
	}

	if firstUncertain != nil {
		firstUncertain.SetMeta(types.MetaBackendsTried, tried)
		return firstUncertain, nil
	}

	res := &types.Resolution{
		Status:   types.StatusNotFound,
		Filename: ref.Filename,
		TypeHint: ref.TypeHint,
	}
	res.SetMeta(types.MetaBackendsTried, tried)
	return res, nil
}

// commitFound writes the result to the cache and records the attempt.
// Cache write failures are logged and swallowed (the cache is advisory);
// state persistence failures are returned because they break durability.
func (c *Coordinator) commitFound(ctx context.Context, ref types.ArtifactRef, res *types.Resolution) error {
	if c.cache != nil {
		if err := c.cache.Put(ctx, res.Filename, res); err != nil {
			c.logger.Warn("cache write failed",
				zap.String("filename", res.Filename), zap.Error(err))
		}
	}
	if c.store == nil {
		return nil
	}
	return c.store.MarkAttempted(res.Filename, state.AttemptContext{
		TypeHint:       res.TypeHint,
		OriginNodeType: ref.OriginNodeType,
		ModelID:        res.ModelID,
		VersionID:      res.VersionID,
		DownloadURL:    res.DownloadURL,
	})
}

// ordered maps an explicit backend-name order onto adapters, falling back
// to the configured default order. Unknown names are skipped with a log
// line rather than failing the whole resolution.
func (c *Coordinator) ordered(order []string) []backend.Backend {
	if len(order) == 0 {
		return c.backends
	}
	out := make([]backend.Backend, 0, len(order))
	for _, name := range order {
		b, ok := c.byName[name]
		if !ok {
			c.logger.Warn("unknown backend in requested order", zap.String("backend", name))
			continue
		}
		out = append(out, b)
	}
	return out
}

// ResolveMany resolves refs sequentially, preserving input order in the
// returned slice. A minimum inter-request delay is enforced between
// resolutions that consulted a backend; cache hits and rejected filenames
// do not pay it. Processing stops early only on a state persistence error.
func (c *Coordinator) ResolveMany(ctx context.Context, refs []types.ArtifactRef, order ...string) ([]*types.Resolution, error) {
	out := make([]*types.Resolution, 0, len(refs))
	needDelay := false

	for _, ref := range refs {
		if needDelay {
			c.sleep(ctx, c.delay)
		}

		res, err := c.Resolve(ctx, ref, order...)
		out = append(out, res)
		if err != nil {
			return out, err
		}

		_, cacheHit := res.Metadata[types.MetaCacheHit]
		needDelay = res.Status != types.StatusInvalidFilename && !cacheHit
	}
	return out, nil
}
