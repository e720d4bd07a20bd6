package types

import "time"

// AttemptStatus is the lifecycle state of one resolution/download attempt.
//
// State machine per filename:
//
//	none → pending/attempted → {success | failed}
//
// failed may transition back to attempted on retry (a new record is
// appended); success is terminal unless explicitly cleared by RetryFailed.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptAttempted AttemptStatus = "attempted"
	AttemptSuccess   AttemptStatus = "success"
	AttemptFailed    AttemptStatus = "failed"
)

// AttemptRecord is one durable entry in the attempt ledger. Records are
// created by MarkAttempted, transitioned in place by MarkSuccess/MarkFailed,
// and removed only by explicit retention cleanup.
type AttemptRecord struct {
	// ID ties the per-filename history entry to its global-log twin.
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Filename  string        `json:"filename"`
	Status    AttemptStatus `json:"status"`

	TypeHint       string `json:"type_hint,omitempty"`
	OriginNodeType string `json:"origin_node_type,omitempty"`
	ModelID        int64  `json:"model_id,omitempty"`
	VersionID      int64  `json:"version_id,omitempty"`
	DownloadURL    string `json:"download_url,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	FilePath    string     `json:"file_path,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	Checksum    string     `json:"checksum,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Terminal reports whether the record has reached a final state.
func (r *AttemptRecord) Terminal() bool {
	return r.Status == AttemptSuccess || r.Status == AttemptFailed
}
