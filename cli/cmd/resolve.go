package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/prospect-io/prospector/cli/render"
	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/notify"
	"github.com/prospect-io/prospector/types"
)

// ResolveCommand returns the resolve command: locate one or more artifact
// filenames against the configured backends.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve model filenames against the configured registries",
		ArgsUsage: "<filename> [filename...]",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "type",
				Usage: "Artifact type hint (checkpoint, lora, vae, ...)",
			},
			&cli.StringFlag{
				Name:  "origin",
				Usage: "Workflow node type the reference came from",
			},
			&cli.StringSliceFlag{
				Name:  "backend",
				Usage: "Backend order override (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Bypass the result cache",
			},
		),
		Action: resolveAction,
	}
}

func resolveAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("resolve requires at least one filename", 2)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	coord, collector, closeCache, err := buildCoordinator(c, cfg, logger, store)
	if err != nil {
		return err
	}
	defer closeCache()

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	refs := make([]types.ArtifactRef, 0, c.NArg())
	for _, name := range c.Args().Slice() {
		refs = append(refs, types.ArtifactRef{
			Filename:       name,
			TypeHint:       c.String("type"),
			OriginNodeType: c.String("origin"),
		})
	}

	resolutions, err := coord.ResolveMany(c.Context, refs, c.StringSlice("backend")...)
	if renderErr := r.Render(resolutions); renderErr != nil {
		return renderErr
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("state persistence failed: %v", err), 1)
	}

	if notifier != nil {
		publishEvents(c.Context, notifier, logger, resolutions)
	}

	snap := collector.Snapshot()
	logger.Debug("resolution batch finished",
		zap.Int("requested", len(refs)),
		zap.Int64("cache_hits", snap.CacheHits),
		zap.Int64("cache_misses", snap.CacheMisses),
		zap.Any("by_status", snap.ResolutionsByStatus),
		zap.Any("backend_calls", snap.BackendCalls))

	// Scriptability: a distinct code when anything stayed unresolved.
	for _, res := range resolutions {
		if res.Status != types.StatusFound {
			return cli.Exit("", 3)
		}
	}
	return nil
}

// publishEvents notifies downstream systems of each backend-serviced
// resolution. Cache hits are skipped (their event already fired) and
// publish failures are logged, never fatal.
func publishEvents(ctx context.Context, notifier notify.Notifier, logger *log.Logger, resolutions []*types.Resolution) {
	now := time.Now()
	for _, res := range resolutions {
		if _, hit := res.Metadata[types.MetaCacheHit]; hit {
			continue
		}
		if err := notifier.Publish(ctx, notify.EventFrom(res, now)); err != nil {
			logger.Warn("notification failed",
				zap.String("filename", res.Filename), zap.Error(err))
		}
	}
}
