// Package huggingface implements the secondary registry adapter.
//
// The hub has no numeric model ids: repositories are identified by string
// id and files by repo-relative name, so resolutions carry Repo instead of
// ModelID/VersionID and the download locator is a resolve URL.
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prospect-io/prospector/backend"
	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// BackendName identifies this adapter in resolution metadata.
const BackendName = "huggingface"

// DefaultBaseURL is the public hub endpoint.
const DefaultBaseURL = "https://huggingface.co"

// DefaultTimeout bounds one Search call.
const DefaultTimeout = 30 * time.Second

// DefaultLimit is the search page size.
const DefaultLimit = 10

// maxCandidates caps the candidate list attached to uncertain resolutions.
const maxCandidates = 5

// Config configures the adapter.
type Config struct {
	// BaseURL is the hub root (default https://huggingface.co).
	BaseURL string
	// Token is the bearer credential for gated repositories. Optional.
	Token string
	// Timeout bounds one Search call (default 30s).
	Timeout time.Duration
	// Limit is the search page size (default 10).
	Limit int
}

// Adapter is the secondary registry backend.
type Adapter struct {
	config Config
	client *http.Client
	logger *log.Logger
}

// New creates the adapter.
func New(cfg Config, logger *log.Logger) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if logger == nil {
		logger = log.Nop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Adapter{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named(BackendName),
	}, nil
}

// Name implements backend.Backend.
func (a *Adapter) Name() string { return BackendName }

type modelEntry struct {
	ID       string `json:"id"`
	Siblings []struct {
		Rfilename string `json:"rfilename"`
	} `json:"siblings"`
}

// Search implements backend.Backend. One keyword search is issued; an exact
// sibling file name match wins, partial matches surface as uncertain.
func (a *Adapter) Search(ctx context.Context, ref types.ArtifactRef) *types.Resolution {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	params := url.Values{
		"search": {backend.QueryString(ref.Filename)},
		"limit":  {strconv.Itoa(a.config.Limit)},
		"full":   {"true"},
	}
	reqURL := a.config.BaseURL + "/api/models?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return backend.ErrorResolution(BackendName, ref.Filename, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("User-Agent", "prospector/"+types.Version)
	if a.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return backend.ErrorResolution(BackendName, ref.Filename, fmt.Sprintf("request failed: %v", err))
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return backend.ErrorResolution(BackendName, ref.Filename,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var entries []modelEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return backend.ErrorResolution(BackendName, ref.Filename, fmt.Sprintf("decode response: %v", err))
	}

	return a.classify(ref, entries)
}

func (a *Adapter) classify(ref types.ArtifactRef, entries []modelEntry) *types.Resolution {
	var candidates []types.Candidate

	for _, entry := range entries {
		for _, sib := range entry.Siblings {
			// Sibling paths may carry a directory prefix inside the repo.
			base := sib.Rfilename
			if i := strings.LastIndexByte(base, '/'); i >= 0 {
				base = base[i+1:]
			}

			if base == ref.Filename {
				a.logger.Debug("exact sibling match",
					zap.String("repo", entry.ID), zap.String("file", sib.Rfilename))
				res := &types.Resolution{
					Status:        types.StatusFound,
					Filename:      ref.Filename,
					SourceBackend: BackendName,
					Repo:          entry.ID,
					DownloadURL:   a.resolveURL(entry.ID, sib.Rfilename),
					Confidence:    types.ConfidenceExact,
					TypeHint:      ref.TypeHint,
				}
				res.SetMeta(types.MetaStrategy, "search")
				return res
			}

			if score := backend.Score(ref.Filename, base, false); backend.Classify(score) != backend.LevelLow {
				candidates = append(candidates, types.Candidate{
					Name:        base,
					Repo:        entry.ID,
					DownloadURL: a.resolveURL(entry.ID, sib.Rfilename),
					Score:       score,
				})
			}
		}
	}

	if len(candidates) == 0 {
		return backend.NotFoundResolution(BackendName, ref.Filename)
	}

	top := backend.RankCandidates(candidates,
		func(c types.Candidate) int { return c.Score },
		func(c types.Candidate) string { return c.Name },
		maxCandidates)

	res := &types.Resolution{
		Status:        types.StatusUncertain,
		Filename:      ref.Filename,
		SourceBackend: BackendName,
		TypeHint:      ref.TypeHint,
	}
	res.SetMeta(types.MetaCandidates, top)
	res.SetMeta(types.MetaStrategy, "search")
	return res
}

// resolveURL builds the direct download locator for a repo file.
func (a *Adapter) resolveURL(repo, rfilename string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", a.config.BaseURL, repo, rfilename)
}

var _ backend.Backend = (*Adapter)(nil)
