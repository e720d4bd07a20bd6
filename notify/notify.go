// Package notify defines the outbound event boundary.
//
// Notifiers publish resolution outcomes to downstream systems, letting a
// download manager or review queue react without polling the attempt store.
// The CLI owns notifier lifecycle; users provide configuration only.
package notify

import (
	"context"
	"time"

	"github.com/prospect-io/prospector/types"
)

// EventType identifies the single event shape currently published.
const EventType = "resolution_completed"

// ResolutionEvent is the payload published when a resolution finishes.
type ResolutionEvent struct {
	EventType     string `json:"event_type"` // always "resolution_completed"
	Filename      string `json:"filename"`
	Status        string `json:"status"`
	Confidence    string `json:"confidence,omitempty"`
	SourceBackend string `json:"source_backend,omitempty"`
	ModelID       int64  `json:"model_id,omitempty"`
	VersionID     int64  `json:"version_id,omitempty"`
	Repo          string `json:"repo,omitempty"`
	DownloadURL   string `json:"download_url,omitempty"`
	Actionable    bool   `json:"actionable"`
	Timestamp     string `json:"timestamp"` // ISO 8601
	EngineVersion string `json:"engine_version"`
}

// Notifier publishes resolution events to a downstream system.
// Implementations must be safe for reuse across events.
type Notifier interface {
	// Publish sends a resolution event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *ResolutionEvent) error

	// Close releases notifier resources.
	Close() error
}

// EventFrom builds the published payload for one resolution.
func EventFrom(res *types.Resolution, at time.Time) *ResolutionEvent {
	return &ResolutionEvent{
		EventType:     EventType,
		Filename:      res.Filename,
		Status:        string(res.Status),
		Confidence:    string(res.Confidence),
		SourceBackend: res.SourceBackend,
		ModelID:       res.ModelID,
		VersionID:     res.VersionID,
		Repo:          res.Repo,
		DownloadURL:   res.DownloadURL,
		Actionable:    res.Actionable(),
		Timestamp:     at.UTC().Format(time.RFC3339),
		EngineVersion: types.Version,
	}
}
