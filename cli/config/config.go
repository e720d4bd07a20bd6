package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prospect-io/prospector/backend/civitai"
	"github.com/prospect-io/prospector/backend/huggingface"
	"github.com/prospect-io/prospector/backend/kb"
	"github.com/prospect-io/prospector/backend/registry"
	"github.com/prospect-io/prospector/cache"
	"github.com/prospect-io/prospector/resolver"
	"github.com/prospect-io/prospector/state"
)

// Config represents a prospector.yaml configuration file.
// All values are optional and act as defaults for prospector flags.
// CLI flags always override config values.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	State    StateConfig    `yaml:"state"`
	Backends BackendsConfig `yaml:"backends"`
	Resolver ResolverConfig `yaml:"resolver"`
	Notify   NotifyConfig   `yaml:"notify"`
	Output   OutputConfig   `yaml:"output"`
}

// CacheConfig holds result-cache defaults from the config file.
type CacheConfig struct {
	Dir      string   `yaml:"dir"`
	RedisURL string   `yaml:"redis_url"`
	TTL      Duration `yaml:"ttl"`
}

// StateConfig holds attempt-store defaults from the config file.
type StateConfig struct {
	Path       string `yaml:"path"`
	BackupsDir string `yaml:"backups_dir"`
}

// BackendsConfig declares the registries to consult and their order.
type BackendsConfig struct {
	Order         []string            `yaml:"order"`
	Civitai       CivitaiConfig       `yaml:"civitai"`
	HuggingFace   HuggingFaceConfig   `yaml:"huggingface"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
}

// CivitaiConfig configures the primary registry adapter.
type CivitaiConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Token           string            `yaml:"token"`
	Timeout         Duration          `yaml:"timeout"`
	StrategyTimeout Duration          `yaml:"strategy_timeout"`
	QueryLimit      int               `yaml:"query_limit"`
	KnownModelIDs   map[string]int64  `yaml:"known_model_ids,omitempty"`
	KnownHashes     map[string]string `yaml:"known_hashes,omitempty"`

	// QueryVariants overrides the search passes the adapter runs against
	// the registry. Empty means the adapter's built-in variants.
	QueryVariants []civitai.QueryVariant `yaml:"query_variants,omitempty"`
}

// HuggingFaceConfig configures the secondary registry adapter.
type HuggingFaceConfig struct {
	Enabled bool     `yaml:"enabled"`
	BaseURL string   `yaml:"base_url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
	Limit   int      `yaml:"limit"`
}

// KnowledgeBaseConfig points at the curated mapping file.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// ResolverConfig holds coordinator defaults from the config file.
type ResolverConfig struct {
	RequestDelay Duration `yaml:"request_delay"`
}

// NotifyConfig selects and configures the outbound event notifier.
// An empty Type disables notifications.
type NotifyConfig struct {
	Type    string            `yaml:"type"` // webhook or redis
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// OutputConfig holds rendering defaults from the config file.
type OutputConfig struct {
	Format  string `yaml:"format"`
	NoColor bool   `yaml:"no_color"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultDir is where prospector keeps its cache and state when the config
// does not say otherwise: ~/.prospector, falling back to a relative
// .prospector when the home directory cannot be determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prospector"
	}
	return filepath.Join(home, ".prospector")
}

// RegistryConfig converts file-level backend settings into the adapter
// builder's config.
func (c *Config) RegistryConfig() registry.Config {
	return registry.Config{
		Order: c.Backends.Order,
		Civitai: civitai.Config{
			BaseURL:         c.Backends.Civitai.BaseURL,
			Token:           c.Backends.Civitai.Token,
			Timeout:         c.Backends.Civitai.Timeout.Duration,
			StrategyTimeout: c.Backends.Civitai.StrategyTimeout.Duration,
			QueryLimit:      c.Backends.Civitai.QueryLimit,
			KnownModelIDs:   c.Backends.Civitai.KnownModelIDs,
			KnownHashes:     c.Backends.Civitai.KnownHashes,
			QueryVariants:   c.Backends.Civitai.QueryVariants,
		},
		HuggingFace: huggingface.Config{
			BaseURL: c.Backends.HuggingFace.BaseURL,
			Token:   c.Backends.HuggingFace.Token,
			Timeout: c.Backends.HuggingFace.Timeout.Duration,
			Limit:   c.Backends.HuggingFace.Limit,
		},
		HuggingFaceEnabled: c.Backends.HuggingFace.Enabled,
		KnowledgeBase:      kb.Config{Path: c.Backends.KnowledgeBase.Path},
	}
}

// CacheSettings converts file-level cache settings, applying the default
// cache directory when neither a directory nor a Redis URL is configured.
func (c *Config) CacheSettings() cache.Config {
	dir := c.Cache.Dir
	if dir == "" && c.Cache.RedisURL == "" {
		dir = filepath.Join(DefaultDir(), "cache")
	}
	return cache.Config{
		Dir:      dir,
		RedisURL: c.Cache.RedisURL,
		TTL:      c.Cache.TTL.Duration,
	}
}

// StateSettings converts file-level state settings, applying the default
// state path when none is configured.
func (c *Config) StateSettings() state.Config {
	path := c.State.Path
	if path == "" {
		path = filepath.Join(DefaultDir(), "state.json")
	}
	return state.Config{Path: path, BackupsDir: c.State.BackupsDir}
}

// ResolverOptions converts file-level resolver settings into coordinator
// options. Cache, store, metrics, and logger are attached by the caller.
func (c *Config) ResolverOptions() resolver.Options {
	return resolver.Options{RequestDelay: c.Resolver.RequestDelay.Duration}
}
