// Package registry assembles the ordered backend list at startup.
//
// Adapters are feature-detected: one whose preconditions fail (no base URL,
// unreadable knowledge base) is skipped with a log line, not an error. An
// absent integration just means a shorter backend list.
package registry

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/prospect-io/prospector/backend"
	"github.com/prospect-io/prospector/backend/civitai"
	"github.com/prospect-io/prospector/backend/huggingface"
	"github.com/prospect-io/prospector/backend/kb"
	"github.com/prospect-io/prospector/log"
)

// DefaultOrder consults the free local knowledge base first, then the
// primary registry, then the secondary.
var DefaultOrder = []string{kb.BackendName, civitai.BackendName, huggingface.BackendName}

// Config declares which adapters to attempt and in what order.
type Config struct {
	// Order lists backend names to consult, first to last. Defaults to
	// DefaultOrder. Names without a successfully built adapter are dropped.
	Order []string

	Civitai     civitai.Config
	HuggingFace huggingface.Config
	// HuggingFaceEnabled gates the secondary registry; its base URL has a
	// public default so presence of config alone cannot feature-detect it.
	HuggingFaceEnabled bool
	KnowledgeBase      kb.Config
}

// Build constructs the ordered adapter list. Returns an error only when the
// resulting list would be empty — an engine with zero backends cannot
// resolve anything.
func Build(cfg Config, logger *log.Logger) ([]backend.Backend, error) {
	if logger == nil {
		logger = log.Nop()
	}

	available := make(map[string]backend.Backend, 3)

	if cfg.KnowledgeBase.Path != "" {
		a, err := kb.New(cfg.KnowledgeBase, logger)
		if err != nil {
			logger.Warn("skipping knowledge base", zap.Error(err))
		} else {
			available[kb.BackendName] = a
			logger.Info("knowledge base loaded", zap.Int("mappings", a.Len()))
		}
	}

	if cfg.Civitai.BaseURL != "" {
		a, err := civitai.New(cfg.Civitai, logger)
		if err != nil {
			logger.Warn("skipping civitai registry", zap.Error(err))
		} else {
			available[civitai.BackendName] = a
		}
	}

	if cfg.HuggingFaceEnabled {
		a, err := huggingface.New(cfg.HuggingFace, logger)
		if err != nil {
			logger.Warn("skipping huggingface registry", zap.Error(err))
		} else {
			available[huggingface.BackendName] = a
		}
	}

	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	var backends []backend.Backend
	for _, name := range order {
		a, ok := available[name]
		if !ok {
			logger.Debug("backend not available", zap.String("backend", name))
			continue
		}
		backends = append(backends, a)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends available: configure at least one of %v", DefaultOrder)
	}
	return backends, nil
}
