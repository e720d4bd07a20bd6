// Package backend defines the uniform adapter capability over one remote
// registry or local knowledge source, plus the shared confidence scoring
// model and the ordered-list builder.
//
// Adapters never return Go errors from Search: transport and parse failures
// are converted to error-status resolutions so a single misbehaving registry
// cannot abort a multi-backend walk.
package backend

import (
	"context"

	"github.com/prospect-io/prospector/types"
)

// Backend is the uniform capability wrapping one registry or knowledge base.
type Backend interface {
	// Name identifies the backend in resolution metadata and attempt records.
	Name() string

	// Search attempts to locate the referenced artifact. The returned
	// resolution is never nil; failures surface as StatusError with
	// ErrorDetail set.
	Search(ctx context.Context, ref types.ArtifactRef) *types.Resolution
}

// ErrorResolution builds the error-status resolution adapters return for
// transport and parse failures.
func ErrorResolution(backendName, filename, detail string) *types.Resolution {
	return &types.Resolution{
		Status:        types.StatusError,
		Filename:      filename,
		SourceBackend: backendName,
		ErrorDetail:   detail,
	}
}

// NotFoundResolution builds the not-found resolution for one backend.
func NotFoundResolution(backendName, filename string) *types.Resolution {
	return &types.Resolution{
		Status:        types.StatusNotFound,
		Filename:      filename,
		SourceBackend: backendName,
	}
}
