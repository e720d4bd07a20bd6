// Package types defines the shared value types of the resolution engine:
// artifact references, resolution results, and attempt records.
//
// This is a leaf package with no internal dependencies. All other packages
// communicate through these types.
package types

// Status classifies the outcome of a resolution request.
type Status string

const (
	// StatusFound indicates an artifact was located with sufficient confidence.
	StatusFound Status = "found"
	// StatusNotFound indicates every configured backend was exhausted.
	StatusNotFound Status = "not_found"
	// StatusInvalidFilename indicates the input failed validation.
	// No backend is consulted for invalid filenames.
	StatusInvalidFilename Status = "invalid_filename"
	// StatusError indicates a transport or parse failure. Retryable by the caller.
	StatusError Status = "error"
	// StatusUncertain indicates ambiguous candidates that require human review.
	// An uncertain result must never be auto-actioned by a downloader.
	StatusUncertain Status = "uncertain"
)

// Confidence expresses match strength. Meaningful only when Status is found.
type Confidence string

const (
	// ConfidenceExact means the candidate file name equals the requested
	// name, case-sensitive. Only exact matches authorize automatic action.
	ConfidenceExact Confidence = "exact"
	// ConfidenceFuzzy means a stem/keyword overlap match.
	ConfidenceFuzzy Confidence = "fuzzy"
)

// ArtifactRef is a reference to an external model artifact, produced by an
// upstream workflow scanner. The engine treats it as read-only input.
type ArtifactRef struct {
	// Filename is the raw artifact name as it appears in the workflow.
	Filename string `json:"filename"`
	// TypeHint is the artifact category, if known (checkpoint, lora, vae, ...).
	TypeHint string `json:"type_hint,omitempty"`
	// OriginNodeType is the workflow node type that referenced the artifact.
	OriginNodeType string `json:"origin_node_type,omitempty"`
}

// Candidate is one scored match surfaced by a backend search.
// Uncertain resolutions carry their top candidates for human review.
type Candidate struct {
	Name        string `json:"name"`
	ModelID     int64  `json:"model_id,omitempty"`
	VersionID   int64  `json:"version_id,omitempty"`
	Repo        string `json:"repo,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Score       int    `json:"score"`
}

// Resolution is the structured outcome of attempting to locate an artifact.
type Resolution struct {
	Status Status `json:"status"`
	// Filename is the requested name, normalized by the validator.
	Filename string `json:"filename"`
	// SourceBackend names the backend that produced the result. Empty for
	// cache-synthesized and validation failures.
	SourceBackend string `json:"source_backend,omitempty"`
	// ModelID and VersionID are registry-specific numeric identifiers.
	ModelID   int64 `json:"model_id,omitempty"`
	VersionID int64 `json:"version_id,omitempty"`
	// Repo is a registry-specific string identifier (e.g. a Hugging Face
	// repository id) for registries without numeric ids.
	Repo string `json:"repo,omitempty"`
	// DownloadURL is an opaque locator for the downstream downloader.
	DownloadURL string     `json:"download_url,omitempty"`
	Confidence  Confidence `json:"confidence,omitempty"`
	TypeHint    string     `json:"type_hint,omitempty"`
	// Metadata carries open diagnostic context: the search strategy used,
	// candidate lists for uncertain results, backends tried, and so on.
	Metadata map[string]any `json:"metadata,omitempty"`
	// ErrorDetail is set when Status is error.
	ErrorDetail string `json:"error_detail,omitempty"`
}

// Metadata keys written by the engine.
const (
	// MetaCandidates holds []Candidate on uncertain resolutions.
	MetaCandidates = "candidates"
	// MetaBackendsTried holds the ordered []string of backends consulted.
	MetaBackendsTried = "backends_tried"
	// MetaStrategy names the search strategy that produced the result.
	MetaStrategy = "strategy"
	// MetaCacheHit marks resolutions served from the result cache.
	MetaCacheHit = "cache_hit"
)

// Candidates returns the candidate list attached to an uncertain resolution,
// or nil when none is present.
func (r *Resolution) Candidates() []Candidate {
	if r.Metadata == nil {
		return nil
	}
	c, _ := r.Metadata[MetaCandidates].([]Candidate)
	return c
}

// SetMeta attaches a metadata entry, allocating the map on first use.
func (r *Resolution) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, 4)
	}
	r.Metadata[key] = value
}

// Actionable reports whether a resolution authorizes automatic download:
// found with exact confidence. Uncertain results are never actionable.
func (r *Resolution) Actionable() bool {
	return r.Status == StatusFound && r.Confidence == ConfidenceExact
}
