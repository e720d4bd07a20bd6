// Package kb implements the knowledge-base adapter: a local YAML file of
// pre-mapped artifact identifiers, consulted before any remote registry.
//
// Lookups are exact key matches, cost no network round trip, and are
// authoritative: a mapping curated by an operator outranks any search.
package kb

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prospect-io/prospector/backend"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// BackendName identifies this adapter in resolution metadata.
const BackendName = "knowledge_base"

// Mapping is one curated filename → identifiers entry.
type Mapping struct {
	Source      string `yaml:"source"`
	ModelID     int64  `yaml:"model_id,omitempty"`
	VersionID   int64  `yaml:"version_id,omitempty"`
	Repo        string `yaml:"repo,omitempty"`
	DownloadURL string `yaml:"download_url"`
	TypeHint    string `yaml:"type_hint,omitempty"`
}

// file is the on-disk knowledge-base shape.
type file struct {
	Mappings map[string]Mapping `yaml:"mappings"`
}

// Config configures the adapter.
type Config struct {
	// Path is the knowledge-base YAML file.
	Path string
}

// Adapter serves curated mappings.
type Adapter struct {
	mappings map[string]Mapping
	logger   *log.Logger
}

// New loads the knowledge base. A missing or unreadable file is an error so
// the builder can skip the adapter rather than serve an empty base silently.
func New(cfg Config, logger *log.Logger) (*Adapter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("knowledge base requires a file path")
	}
	if logger == nil {
		logger = log.Nop()
	}

	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base %s: %w", cfg.Path, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge base %s: %w", cfg.Path, err)
	}

	return &Adapter{mappings: f.Mappings, logger: logger.Named(BackendName)}, nil
}

// NewFromMappings builds an adapter from an in-memory map. Used by tests and
// embedders that manage their own mapping source.
func NewFromMappings(mappings map[string]Mapping, logger *log.Logger) *Adapter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Adapter{mappings: mappings, logger: logger.Named(BackendName)}
}

// Name implements backend.Backend.
func (a *Adapter) Name() string { return BackendName }

// Len reports the number of curated mappings.
func (a *Adapter) Len() int { return len(a.mappings) }

// Search implements backend.Backend with an exact map lookup.
func (a *Adapter) Search(_ context.Context, ref types.ArtifactRef) *types.Resolution {
	m, ok := a.mappings[ref.Filename]
	if !ok {
		return backend.NotFoundResolution(BackendName, ref.Filename)
	}

	typeHint := ref.TypeHint
	if typeHint == "" {
		typeHint = m.TypeHint
	}

	res := &types.Resolution{
		Status:        types.StatusFound,
		Filename:      ref.Filename,
		SourceBackend: BackendName,
		ModelID:       m.ModelID,
		VersionID:     m.VersionID,
		Repo:          m.Repo,
		DownloadURL:   m.DownloadURL,
		Confidence:    types.ConfidenceExact,
		TypeHint:      typeHint,
	}
	res.SetMeta(types.MetaStrategy, "knowledge_base")
	return res
}

var _ backend.Backend = (*Adapter)(nil)
