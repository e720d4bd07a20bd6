// Package state implements the durable, versioned, transactional record of
// every resolution/download attempt.
//
// The unit of persistence is a Snapshot: schema version, per-filename
// attempt histories, a global chronological log, and open metadata. Every
// mutating operation runs inside an explicit snapshot/commit/rollback
// boundary and is persisted atomically with a backup of the previous file.
package state

import (
	"time"

	"github.com/prospect-io/prospector/types"
)

// SchemaVersion is the current snapshot schema.
// Version 1 kept a single record per filename; version 2 keeps full
// histories plus the global log.
const SchemaVersion = 2

// Snapshot is the persisted state shape.
type Snapshot struct {
	SchemaVersion int `json:"schema_version"`
	// Models maps each filename to its ordered attempt history. The latest
	// entry is authoritative for current status.
	Models map[string][]*types.AttemptRecord `json:"models"`
	// Log is the global chronological record of all attempts across all
	// filenames, for auditing and statistics. Entries are matched to
	// history records by ID.
	Log      []*types.AttemptRecord `json:"log"`
	Metadata map[string]string      `json:"metadata"`
}

// NewSnapshot returns a valid empty snapshot at the current schema version.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Models:        make(map[string][]*types.AttemptRecord),
		Log:           make([]*types.AttemptRecord, 0),
		Metadata:      map[string]string{"created_at": time.Now().UTC().Format(time.RFC3339)},
	}
}

// Clone deep-copies the snapshot. Transactions take a clone before mutating
// so a failure can restore the exact pre-transaction state.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		SchemaVersion: s.SchemaVersion,
		Models:        make(map[string][]*types.AttemptRecord, len(s.Models)),
		Log:           make([]*types.AttemptRecord, len(s.Log)),
		Metadata:      make(map[string]string, len(s.Metadata)),
	}
	for name, history := range s.Models {
		copied := make([]*types.AttemptRecord, len(history))
		for i, rec := range history {
			copied[i] = cloneRecord(rec)
		}
		out.Models[name] = copied
	}
	for i, rec := range s.Log {
		out.Log[i] = cloneRecord(rec)
	}
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return out
}

func cloneRecord(rec *types.AttemptRecord) *types.AttemptRecord {
	c := *rec
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		c.CompletedAt = &t
	}
	if rec.FailedAt != nil {
		t := *rec.FailedAt
		c.FailedAt = &t
	}
	return &c
}

// latest returns the newest history record for filename, or nil.
func (s *Snapshot) latest(filename string) *types.AttemptRecord {
	history := s.Models[filename]
	if len(history) == 0 {
		return nil
	}
	return history[len(history)-1]
}

// logRecord returns the global-log entry with the given ID, or nil.
func (s *Snapshot) logRecord(id string) *types.AttemptRecord {
	for i := len(s.Log) - 1; i >= 0; i-- {
		if s.Log[i].ID == id {
			return s.Log[i]
		}
	}
	return nil
}
