// Package civitai implements the primary registry adapter.
//
// The adapter speaks the registry's public HTTP API: keyword query, direct
// model-id lookup, and SHA-256 hash lookup. Direct-id responses are checked
// against the requested identifier because the registry is known to return a
// substitute record for nonexistent or restricted ids instead of a 404.
package civitai

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
const BackendName = "civitai"

// DefaultTimeout bounds one whole Search call.
const DefaultTimeout = 30 * time.Second

// DefaultStrategyTimeout bounds each cascade strategy independently.
const DefaultStrategyTimeout = 10 * time.Second

// DefaultQueryLimit is the page size requested from the registry.
const DefaultQueryLimit = 20

// maxCandidates caps the candidate list attached to uncertain resolutions.
const maxCandidates = 5

// QueryVariant is one parameterized query configuration in the fallback
// cascade. The exact set is registry-policy-dependent and ships as
// configuration data, not code.
type QueryVariant struct {
	Sort string `yaml:"sort"`
	NSFW bool   `yaml:"nsfw"`
}

// DefaultQueryVariants covers the sort orders and content-visibility levels
// the registry gates differently.
func DefaultQueryVariants() []QueryVariant {
	return []QueryVariant{
		{Sort: "Highest Rated", NSFW: false},
		{Sort: "Most Downloaded", NSFW: false},
		{Sort: "Highest Rated", NSFW: true},
		{Sort: "Newest", NSFW: true},
	}
}

// Config configures the adapter.
type Config struct {
	// BaseURL is the registry API root (e.g. https://civitai.com/api/v1).
	BaseURL string
	// Token is the bearer credential. Empty means anonymous access.
	Token string
	// Timeout bounds one Search call (default 30s).
	Timeout time.Duration
	// StrategyTimeout bounds each cascade strategy (default 10s).
	StrategyTimeout time.Duration
	// QueryLimit is the page size for query strategies (default 20).
	QueryLimit int
	// QueryVariants parameterizes the query-variation strategy.
	QueryVariants []QueryVariant
	// KnownModelIDs maps filenames to pre-known registry model ids,
	// enabling the authoritative direct-lookup strategy.
	KnownModelIDs map[string]int64
	// KnownHashes maps filenames to SHA-256 digests for hash lookup.
	KnownHashes map[string]string
}

// Adapter is the primary registry backend.
type Adapter struct {
	config Config
	client *http.Client
	logger *log.Logger
}

// New creates the adapter. Returns an error when BaseURL is empty so the
// builder can skip an unconfigured registry instead of wiring a dead one.
func New(cfg Config, logger *log.Logger) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("civitai adapter requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = DefaultStrategyTimeout
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = DefaultQueryLimit
	}
	if len(cfg.QueryVariants) == 0 {
		cfg.QueryVariants = DefaultQueryVariants()
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

// API response shapes. Only the fields the engine reads are declared.

type modelResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Creator struct {
		Username string `json:"username"`
	} `json:"creator"`
	ModelVersions []versionResponse `json:"modelVersions"`
}

type versionResponse struct {
	ID      int64  `json:"id"`
	ModelID int64  `json:"modelId"`
	Name    string `json:"name"`
	Files   []fileResponse `json:"files"`
}

type fileResponse struct {
	Name        string `json:"name"`
	DownloadURL string `json:"downloadUrl"`
	Hashes      struct {
		SHA256 string `json:"SHA256"`
	} `json:"hashes"`
}

type searchResponse struct {
	Items []modelResponse `json:"items"`
}

// candidate is one scored file surfaced by any strategy.
type candidate struct {
	types.Candidate
	strategy string
}

// Search implements backend.Backend via the multi-strategy fallback cascade:
// direct id → hash lookup → parameterized query variants → tag search →
// creator-scoped search → broadened stem search. Each strategy is bounded by
// its own timeout; a failure or empty result advances to the next.
func (a *Adapter) Search(ctx context.Context, ref types.ArtifactRef) *types.Resolution {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	var (
		collected []candidate
		errCount  int
		ranCount  int
		lastErr   error
	)

	for _, strat := range a.strategies(ref) {
		ranCount++
		cands, err := a.runStrategy(ctx, strat)
		if err != nil {
			errCount++
			lastErr = err
			a.logger.Warn("search strategy failed",
				zap.String("strategy", strat.name),
				zap.String("filename", ref.Filename),
				zap.Error(err))
			continue
		}
		collected = append(collected, cands...)

		// An exact high-confidence candidate ends the cascade early;
		// later strategies only broaden recall.
		if best, ok := bestExact(ref.Filename, collected); ok {
			return a.found(ref, best)
		}
	}

	if len(collected) == 0 {
		if ranCount > 0 && errCount == ranCount {
			return backend.ErrorResolution(BackendName, ref.Filename,
				fmt.Sprintf("all %d search strategies failed: %v", errCount, lastErr))
		}
		return backend.NotFoundResolution(BackendName, ref.Filename)
	}

	// Only fuzzy candidates survived: surface for human review, never guess.
	return a.uncertain(ref, collected)
}

// strategy is one bounded step of the fallback cascade.
type strategy struct {
	name string
	run  func(ctx context.Context) ([]candidate, error)
}

func (a *Adapter) strategies(ref types.ArtifactRef) []strategy {
	var out []strategy

	if id, ok := a.config.KnownModelIDs[ref.Filename]; ok {
		out = append(out, strategy{"direct_id", func(ctx context.Context) ([]candidate, error) {
			return a.lookupModelID(ctx, id)
		}})
	}
	if hash, ok := a.config.KnownHashes[ref.Filename]; ok {
		out = append(out, strategy{"hash", func(ctx context.Context) ([]candidate, error) {
			return a.lookupHash(ctx, hash)
		}})
	}

	query := backend.QueryString(ref.Filename)
	for _, variant := range a.config.QueryVariants {
		v := variant
		name := fmt.Sprintf("query[%s,nsfw=%t]", v.Sort, v.NSFW)
		out = append(out, strategy{name, func(ctx context.Context) ([]candidate, error) {
			return a.searchModels(ctx, name, url.Values{
				"query": {query},
				"limit": {strconv.Itoa(a.config.QueryLimit)},
				"sort":  {v.Sort},
				"nsfw":  {strconv.FormatBool(v.NSFW)},
			})
		}})
	}

	keywords := backend.Keywords(ref.Filename)
	if len(keywords) > 0 {
		tag := keywords[0]
		out = append(out, strategy{"tag", func(ctx context.Context) ([]candidate, error) {
			return a.searchModels(ctx, "tag", url.Values{
				"tag":   {tag},
				"limit": {strconv.Itoa(a.config.QueryLimit)},
			})
		}})
		out = append(out, strategy{"creator", func(ctx context.Context) ([]candidate, error) {
			return a.searchModels(ctx, "creator", url.Values{
				"username": {tag},
				"limit":    {strconv.Itoa(a.config.QueryLimit)},
			})
		}})

		longest := keywords[0]
		for _, kw := range keywords[1:] {
			if len(kw) > len(longest) {
				longest = kw
			}
		}
		out = append(out, strategy{"broad", func(ctx context.Context) ([]candidate, error) {
			return a.searchModels(ctx, "broad", url.Values{
				"query": {longest},
				"limit": {strconv.Itoa(a.config.QueryLimit)},
			})
		}})
	}

	return out
}

func (a *Adapter) runStrategy(ctx context.Context, s strategy) ([]candidate, error) {
	sctx, cancel := context.WithTimeout(ctx, a.config.StrategyTimeout)
	defer cancel()
	return s.run(sctx)
}

// lookupModelID fetches /models/{id} and applies the identity-consistency
// defense: a response whose id differs from the requested id is treated as
// not found, never as a match.
func (a *Adapter) lookupModelID(ctx context.Context, id int64) ([]candidate, error) {
	var m modelResponse
	if err := a.getJSON(ctx, fmt.Sprintf("%s/models/%d", a.config.BaseURL, id), &m); err != nil {
		return nil, err
	}
	if m.ID == 0 {
		// 404 or empty body: genuinely not found.
		return nil, nil
	}
	if m.ID != id {
		a.logger.Warn("registry returned a substitute record for direct lookup",
			zap.Int64("requested_id", id), zap.Int64("response_id", m.ID))
		return nil, nil
	}
	return a.modelCandidates(m, "direct_id", true), nil
}

// lookupHash fetches /model-versions/by-hash/{sha256}. Hash lookups are
// authoritative: the digest identifies the exact file.
func (a *Adapter) lookupHash(ctx context.Context, hash string) ([]candidate, error) {
	var v versionResponse
	if err := a.getJSON(ctx, a.config.BaseURL+"/model-versions/by-hash/"+url.PathEscape(hash), &v); err != nil {
		return nil, err
	}
	var out []candidate
	for _, f := range v.Files {
		out = append(out, candidate{
			Candidate: types.Candidate{
				Name:        f.Name,
				ModelID:     v.ModelID,
				VersionID:   v.ID,
				DownloadURL: f.DownloadURL,
			},
			strategy: "hash",
		})
	}
	return out, nil
}

func (a *Adapter) searchModels(ctx context.Context, strategyName string, params url.Values) ([]candidate, error) {
	var resp searchResponse
	if err := a.getJSON(ctx, a.config.BaseURL+"/models?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	var out []candidate
	for _, m := range resp.Items {
		out = append(out, a.modelCandidates(m, strategyName, false)...)
	}
	return out, nil
}

func (a *Adapter) modelCandidates(m modelResponse, strategyName string, direct bool) []candidate {
	var out []candidate
	for _, v := range m.ModelVersions {
		for _, f := range v.Files {
			out = append(out, candidate{
				Candidate: types.Candidate{
					Name:        f.Name,
					ModelID:     m.ID,
					VersionID:   v.ID,
					DownloadURL: f.DownloadURL,
				},
				strategy: strategyName,
			})
		}
	}
	if direct {
		for i := range out {
			out[i].strategy = "direct_id"
		}
	}
	return out
}

// getJSON performs one authenticated GET and decodes the JSON body.
// Non-2xx statuses and malformed payloads are errors; 404 yields an empty
// result set so the cascade advances without noise.
func (a *Adapter) getJSON(ctx context.Context, rawURL string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "prospector/"+types.Version)
	if a.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.Token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// bestExact returns the highest-scoring exact candidate at high confidence,
// if any. Exactness is a case-sensitive file name comparison.
func bestExact(requested string, cands []candidate) (candidate, bool) {
	var best candidate
	bestScore := -1
	for _, c := range cands {
		if c.Name != requested {
			continue
		}
		score := backend.Score(requested, c.Name, c.strategy == "direct_id" || c.strategy == "hash")
		if backend.Classify(score) == backend.LevelHigh && score > bestScore {
			best = c
			best.Score = score
			bestScore = score
		}
	}
	return best, bestScore >= 0
}

func (a *Adapter) found(ref types.ArtifactRef, c candidate) *types.Resolution {
	res := &types.Resolution{
		Status:        types.StatusFound,
		Filename:      ref.Filename,
		SourceBackend: BackendName,
		ModelID:       c.ModelID,
		VersionID:     c.VersionID,
		DownloadURL:   c.DownloadURL,
		Confidence:    types.ConfidenceExact,
		TypeHint:      ref.TypeHint,
	}
	res.SetMeta(types.MetaStrategy, c.strategy)
	return res
}

func (a *Adapter) uncertain(ref types.ArtifactRef, cands []candidate) *types.Resolution {
	cands = dedupe(cands)
	for i := range cands {
		cands[i].Score = backend.Score(ref.Filename, cands[i].Name,
			cands[i].strategy == "direct_id" || cands[i].strategy == "hash")
	}
	top := backend.RankCandidates(cands,
		func(c candidate) int { return c.Score },
		func(c candidate) string { return c.Name },
		maxCandidates)

	plain := make([]types.Candidate, len(top))
	for i, c := range top {
		plain[i] = c.Candidate
	}

	res := &types.Resolution{
		Status:        types.StatusUncertain,
		Filename:      ref.Filename,
		SourceBackend: BackendName,
		TypeHint:      ref.TypeHint,
	}
	res.SetMeta(types.MetaCandidates, plain)
	res.SetMeta(types.MetaStrategy, top[0].strategy)
	return res
}

// dedupe collapses candidates surfaced by more than one strategy, keeping
// the first (earliest-strategy) occurrence.
func dedupe(cands []candidate) []candidate {
	seen := make(map[string]struct{}, len(cands))
	out := cands[:0]
	for _, c := range cands {
		key := fmt.Sprintf("%d/%d/%s", c.ModelID, c.VersionID, c.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

var _ backend.Backend = (*Adapter)(nil)

