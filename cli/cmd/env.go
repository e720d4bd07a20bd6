package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/prospect-io/prospector/backend/registry"
	"github.com/prospect-io/prospector/cache"
	"github.com/prospect-io/prospector/cli/config"
	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/metrics"
	"github.com/prospect-io/prospector/notify"
	notifyredis "github.com/prospect-io/prospector/notify/redis"
	"github.com/prospect-io/prospector/notify/webhook"
	"github.com/prospect-io/prospector/resolver"
	"github.com/prospect-io/prospector/state"
)

// loadConfig reads the config file named by --config, falling back to
// ./prospector.yaml and ~/.prospector/prospector.yaml. Absence of any
// config file is not an error; defaults apply.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	for _, path := range []string{
		"prospector.yaml",
		filepath.Join(config.DefaultDir(), "prospector.yaml"),
	} {
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		}
	}
	return &config.Config{}, nil
}

// newLogger builds the CLI logger. Engine chatter goes to stderr at warn
// level so command output on stdout stays parseable; --verbose opens the
// floodgates.
func newLogger(c *cli.Context) *log.Logger {
	level := zapcore.WarnLevel
	if c.Bool("verbose") {
		level = zapcore.DebugLevel
	}
	return log.NewAtLevel("prospector", os.Stderr, level)
}

// openStore opens the attempt state store per config.
func openStore(cfg *config.Config, logger *log.Logger) (*state.Store, error) {
	store, err := state.Open(cfg.StateSettings(), logger)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return store, nil
}

// buildCoordinator assembles the full resolution pipeline: backends from
// config, the result cache (unless disabled), and the attempt store. The
// returned closer releases cache resources.
func buildCoordinator(c *cli.Context, cfg *config.Config, logger *log.Logger, store *state.Store) (*resolver.Coordinator, *metrics.Collector, func(), error) {
	backends, err := registry.Build(cfg.RegistryConfig(), logger)
	if err != nil {
		return nil, nil, nil, err
	}

	closer := func() {}
	var resultCache cache.Cache
	if !c.Bool("no-cache") {
		resultCache, err = cache.New(cfg.CacheSettings(), logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open result cache: %w", err)
		}
		closer = func() { iox.DiscardClose(resultCache) }
	}

	collector := metrics.NewCollector()
	opts := cfg.ResolverOptions()
	opts.Cache = resultCache
	opts.Store = store
	opts.Metrics = collector
	opts.Logger = logger

	return resolver.New(backends, opts), collector, closer, nil
}

// buildNotifier constructs the configured notifier, or nil when the config
// leaves notifications off.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	nc := cfg.Notify
	retries := -1 // provider default
	if nc.Retries != nil {
		retries = *nc.Retries
	}

	switch nc.Type {
	case "":
		return nil, nil
	case "webhook":
		wc := webhook.Config{
			URL:     nc.URL,
			Headers: nc.Headers,
			Timeout: nc.Timeout.Duration,
		}
		if retries >= 0 {
			wc.Retries = retries
		} else {
			wc.Retries = webhook.DefaultRetries
		}
		return webhook.New(wc)
	case "redis":
		rc := notifyredis.Config{
			URL:     nc.URL,
			Channel: nc.Channel,
			Timeout: nc.Timeout.Duration,
		}
		if retries >= 0 {
			rc.Retries = retries
		} else {
			rc.Retries = notifyredis.DefaultRetries
		}
		return notifyredis.New(rc)
	default:
		return nil, fmt.Errorf("unsupported notify type: %s (must be webhook or redis)", nc.Type)
	}
}
