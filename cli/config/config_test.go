package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prospector.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
cache:
  dir: /var/cache/prospector
  ttl: 12h
state:
  path: /var/lib/prospector/state.json
backends:
  order: [civitai, huggingface]
  civitai:
    base_url: https://civitai.example/api/v1
    token: secret-token
    timeout: 45s
    strategy_timeout: 5s
    query_limit: 10
    known_model_ids:
      epicrealism.safetensors: 25694
  huggingface:
    enabled: true
    base_url: https://hub.example
    limit: 5
  knowledge_base:
    path: /etc/prospector/kb.yaml
resolver:
  request_delay: 3s
output:
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Cache.Dir != "/var/cache/prospector" {
		t.Errorf("cache dir = %q", cfg.Cache.Dir)
	}
	if cfg.Cache.TTL.Duration != 12*time.Hour {
		t.Errorf("cache ttl = %v", cfg.Cache.TTL.Duration)
	}
	if cfg.State.Path != "/var/lib/prospector/state.json" {
		t.Errorf("state path = %q", cfg.State.Path)
	}
	if len(cfg.Backends.Order) != 2 || cfg.Backends.Order[0] != "civitai" {
		t.Errorf("backend order = %v", cfg.Backends.Order)
	}
	if cfg.Backends.Civitai.Timeout.Duration != 45*time.Second {
		t.Errorf("civitai timeout = %v", cfg.Backends.Civitai.Timeout.Duration)
	}
	if got := cfg.Backends.Civitai.KnownModelIDs["epicrealism.safetensors"]; got != 25694 {
		t.Errorf("known model id = %d", got)
	}
	if !cfg.Backends.HuggingFace.Enabled {
		t.Error("huggingface not enabled")
	}
	if cfg.Resolver.RequestDelay.Duration != 3*time.Second {
		t.Errorf("request delay = %v", cfg.Resolver.RequestDelay.Duration)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("output format = %q", cfg.Output.Format)
	}
}

func TestLoad_QueryVariants(t *testing.T) {
	path := writeConfig(t, `
backends:
  civitai:
    query_variants:
      - sort: Highest Rated
        nsfw: false
      - sort: Newest
        nsfw: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	variants := cfg.Backends.Civitai.QueryVariants
	if len(variants) != 2 {
		t.Fatalf("query variants = %v", variants)
	}
	if variants[0].Sort != "Highest Rated" || variants[0].NSFW {
		t.Errorf("first variant = %+v", variants[0])
	}
	if variants[1].Sort != "Newest" || !variants[1].NSFW {
		t.Errorf("second variant = %+v", variants[1])
	}

	rc := cfg.RegistryConfig()
	if len(rc.Civitai.QueryVariants) != 2 || rc.Civitai.QueryVariants[1].Sort != "Newest" {
		t.Errorf("variants lost in registry mapping: %v", rc.Civitai.QueryVariants)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("PROSPECTOR_TEST_TOKEN", "tok-from-env")
	path := writeConfig(t, `
backends:
  civitai:
    base_url: ${PROSPECTOR_TEST_BASE:-https://civitai.com/api/v1}
    token: ${PROSPECTOR_TEST_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backends.Civitai.Token != "tok-from-env" {
		t.Errorf("token = %q", cfg.Backends.Civitai.Token)
	}
	if cfg.Backends.Civitai.BaseURL != "https://civitai.com/api/v1" {
		t.Errorf("base url = %q", cfg.Backends.Civitai.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "cache: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "cache:\n  ttl: not-a-duration\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestRegistryConfig_Mapping(t *testing.T) {
	cfg := &Config{}
	cfg.Backends.Order = []string{"huggingface"}
	cfg.Backends.Civitai.BaseURL = "https://civitai.example/api/v1"
	cfg.Backends.HuggingFace.Enabled = true
	cfg.Backends.KnowledgeBase.Path = "/etc/kb.yaml"

	rc := cfg.RegistryConfig()
	if len(rc.Order) != 1 || rc.Order[0] != "huggingface" {
		t.Errorf("order = %v", rc.Order)
	}
	if rc.Civitai.BaseURL != "https://civitai.example/api/v1" {
		t.Errorf("civitai base url = %q", rc.Civitai.BaseURL)
	}
	if !rc.HuggingFaceEnabled {
		t.Error("huggingface enabled flag lost in mapping")
	}
	if rc.KnowledgeBase.Path != "/etc/kb.yaml" {
		t.Errorf("kb path = %q", rc.KnowledgeBase.Path)
	}
}

func TestSettings_Defaults(t *testing.T) {
	cfg := &Config{}

	cc := cfg.CacheSettings()
	if cc.Dir == "" {
		t.Error("empty cache dir not defaulted")
	}
	sc := cfg.StateSettings()
	if sc.Path == "" || filepath.Base(sc.Path) != "state.json" {
		t.Errorf("state path = %q", sc.Path)
	}
}

func TestSettings_RedisSelectsNoDirDefault(t *testing.T) {
	cfg := &Config{}
	cfg.Cache.RedisURL = "redis://localhost:6379/0"

	cc := cfg.CacheSettings()
	if cc.Dir != "" {
		t.Errorf("dir defaulted to %q despite Redis URL", cc.Dir)
	}
	if cc.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cc.RedisURL)
	}
}
