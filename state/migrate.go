package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/prospect-io/prospector/types"
)

// decodeSnapshot parses raw snapshot bytes, applying the migration chain
// until the data reaches the current schema version. Unparseable input is an
// error; the caller quarantines the file.
func decodeSnapshot(data []byte, now time.Time) (*Snapshot, error) {
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}

	version := probe.SchemaVersion
	if version == 0 {
		// Files written before versioning existed are schema 1.
		version = 1
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("state schema %d is newer than supported %d", version, SchemaVersion)
	}

	if version == SchemaVersion {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse state: %w", err)
		}
		if snap.Models == nil {
			snap.Models = make(map[string][]*types.AttemptRecord)
		}
		if snap.Metadata == nil {
			snap.Metadata = make(map[string]string)
		}
		return &snap, nil
	}

	// Walk the chain of pure transformations keyed by source version.
	for version < SchemaVersion {
		migrate, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("no migration from state schema %d", version)
		}
		migrated, err := migrate(data, now)
		if err != nil {
			return nil, fmt.Errorf("migrate state schema %d: %w", version, err)
		}
		data = migrated
		version++
	}
	return decodeSnapshot(data, now)
}

// migrations maps a source schema version to its transformation into the
// next version. Each step is pure: bytes in, bytes out.
var migrations = map[int]func(data []byte, now time.Time) ([]byte, error){
	1: migrateV1,
}

// snapshotV1 kept a single flat record per filename and no global log.
type snapshotV1 struct {
	SchemaVersion int                             `json:"schema_version"`
	Models        map[string]*types.AttemptRecord `json:"models"`
	Metadata      map[string]string               `json:"metadata"`
}

// migrateV1 wraps each flat record in a one-element history, assigns ids
// where the old schema had none, rebuilds the global log in timestamp
// order, and tags the migration provenance in metadata.
func migrateV1(data []byte, now time.Time) ([]byte, error) {
	var old snapshotV1
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, err
	}

	snap := NewSnapshot()
	if old.Metadata != nil {
		snap.Metadata = old.Metadata
	}
	snap.Metadata["migrated_from"] = "1"
	snap.Metadata["migrated_at"] = now.Format(time.RFC3339)

	for name, rec := range old.Models {
		if rec == nil {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Filename == "" {
			rec.Filename = name
		}
		snap.Models[name] = []*types.AttemptRecord{rec}
		snap.Log = append(snap.Log, cloneRecord(rec))
	}
	sort.Slice(snap.Log, func(i, j int) bool {
		return snap.Log[i].Timestamp.Before(snap.Log[j].Timestamp)
	})

	return json.Marshal(snap)
}
