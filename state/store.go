package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prospect-io/prospector/iox"
	"github.com/prospect-io/prospector/log"
	"github.com/prospect-io/prospector/types"
)

// DefaultRetainFailedDays is how long failed records are kept by Cleanup.
const DefaultRetainFailedDays = 30

// backupTimeFormat names timestamped backup files sortably.
const backupTimeFormat = "20060102T150405.000"

// Config configures the store.
type Config struct {
	// Path is the snapshot file (e.g. ~/.prospector/state.json).
	Path string
	// BackupsDir holds timestamped copies taken before each rewrite.
	// Defaults to <dir-of-Path>/backups.
	BackupsDir string
}

// Store is the attempt state store. It is designed for a single logical
// caller per process; concurrent processes sharing one state file must
// serialize externally.
type Store struct {
	path       string
	backupsDir string
	logger     *log.Logger
	snap       *Snapshot

	// Seams for deterministic tests.
	now   func() time.Time
	newID func() string
}

// AttemptContext carries the resolution context recorded with MarkAttempted.
type AttemptContext struct {
	TypeHint       string
	OriginNodeType string
	ModelID        int64
	VersionID      int64
	DownloadURL    string
}

// Open loads the snapshot at cfg.Path, creating missing directories and an
// empty state implicitly. A corrupted file is quarantined as a timestamped
// backup and replaced with a fresh valid snapshot; Open never fails on
// corruption, only on I/O errors outside the engine's control.
func Open(cfg Config, logger *log.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state store requires a file path")
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.BackupsDir == "" {
		cfg.BackupsDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}

	s := &Store{
		path:       cfg.Path,
		backupsDir: cfg.BackupsDir,
		logger:     logger.Named("state"),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}

	if err := iox.EnsureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snap = snap
	return s, nil
}

// load reads and version-migrates the snapshot file.
func (s *Store) load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no existing state, starting fresh", zap.String("path", s.path))
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	snap, err := decodeSnapshot(data, s.now())
	if err != nil {
		quarantine := fmt.Sprintf("%s.corrupted.%s", s.path, s.now().Format(backupTimeFormat))
		s.logger.Warn("state file is corrupted, quarantining",
			zap.String("path", s.path),
			zap.String("quarantine", quarantine),
			zap.Error(err))
		if renameErr := os.Rename(s.path, quarantine); renameErr != nil {
			return nil, fmt.Errorf("quarantine corrupted state: %w", renameErr)
		}
		return NewSnapshot(), nil
	}
	return snap, nil
}

// mutate runs fn inside the transaction boundary: clone, apply, persist.
// Any error from fn or from persistence rolls the in-memory state back to
// the pre-transaction snapshot; nothing is ever partially persisted.
func (s *Store) mutate(fn func(*Snapshot) error) error {
	before := s.snap.Clone()
	if err := fn(s.snap); err != nil {
		s.snap = before
		return err
	}
	if err := s.persist(); err != nil {
		s.snap = before
		s.logger.Error("state save failed, rolled back", zap.Error(err))
		return err
	}
	return nil
}

// persist backs up the existing file and atomically rewrites the snapshot.
func (s *Store) persist() error {
	if _, err := os.Stat(s.path); err == nil {
		backup := filepath.Join(s.backupsDir, fmt.Sprintf("state-%s.json", s.now().Format(backupTimeFormat)))
		if err := iox.CopyFile(s.path, backup); err != nil {
			return fmt.Errorf("backup state: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return iox.WriteFileAtomic(s.path, data, 0o644)
}

// MarkAttempted appends a new attempt record for filename.
func (s *Store) MarkAttempted(filename string, actx AttemptContext) error {
	return s.mutate(func(snap *Snapshot) error {
		rec := &types.AttemptRecord{
			ID:             s.newID(),
			Timestamp:      s.now(),
			Filename:       filename,
			Status:         types.AttemptAttempted,
			TypeHint:       actx.TypeHint,
			OriginNodeType: actx.OriginNodeType,
			ModelID:        actx.ModelID,
			VersionID:      actx.VersionID,
			DownloadURL:    actx.DownloadURL,
		}
		snap.Models[filename] = append(snap.Models[filename], rec)
		snap.Log = append(snap.Log, cloneRecord(rec))
		return nil
	})
}

// MarkSuccess transitions the latest attempt for filename to success,
// recording the downloaded file's path, size, and optional checksum. When no
// attempt exists an implicit one is created first, so externally driven
// downloads still land in the ledger.
func (s *Store) MarkSuccess(filename, filePath string, fileSize int64, checksum string) error {
	return s.mutate(func(snap *Snapshot) error {
		rec := snap.latest(filename)
		if rec == nil || rec.Terminal() {
			rec = s.appendImplicit(snap, filename)
		}
		completed := s.now()
		rec.Status = types.AttemptSuccess
		rec.CompletedAt = &completed
		rec.FilePath = filePath
		rec.FileSize = fileSize
		rec.Checksum = checksum
		rec.Error = ""
		s.syncLog(snap, rec)
		return nil
	})
}

// MarkFailed transitions the latest attempt for filename to failed.
func (s *Store) MarkFailed(filename, errMsg string) error {
	return s.mutate(func(snap *Snapshot) error {
		rec := snap.latest(filename)
		if rec == nil || rec.Terminal() {
			rec = s.appendImplicit(snap, filename)
		}
		failed := s.now()
		rec.Status = types.AttemptFailed
		rec.FailedAt = &failed
		rec.Error = errMsg
		s.syncLog(snap, rec)
		return nil
	})
}

// appendImplicit creates an attempted record for transitions arriving
// without a preceding MarkAttempted.
func (s *Store) appendImplicit(snap *Snapshot, filename string) *types.AttemptRecord {
	rec := &types.AttemptRecord{
		ID:        s.newID(),
		Timestamp: s.now(),
		Filename:  filename,
		Status:    types.AttemptAttempted,
	}
	snap.Models[filename] = append(snap.Models[filename], rec)
	snap.Log = append(snap.Log, cloneRecord(rec))
	return rec
}

// syncLog mirrors a history record's current state onto its global-log twin.
func (s *Store) syncLog(snap *Snapshot, rec *types.AttemptRecord) {
	if twin := snap.logRecord(rec.ID); twin != nil {
		*twin = *cloneRecord(rec)
	}
}

// Status returns the authoritative current status for filename.
func (s *Store) Status(filename string) (types.AttemptStatus, bool) {
	rec := s.snap.latest(filename)
	if rec == nil {
		return "", false
	}
	return rec.Status, true
}

// Successful maps each filename to its latest success record.
func (s *Store) Successful() map[string]*types.AttemptRecord {
	out := make(map[string]*types.AttemptRecord)
	for name, history := range s.snap.Models {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Status == types.AttemptSuccess {
				out[name] = cloneRecord(history[i])
				break
			}
		}
	}
	return out
}

// Failed lists filenames whose latest attempt failed.
func (s *Store) Failed() []string {
	var out []string
	for name := range s.snap.Models {
		if rec := s.snap.latest(name); rec != nil && rec.Status == types.AttemptFailed {
			out = append(out, name)
		}
	}
	return out
}

// History returns a copy of the ordered attempt history for filename.
func (s *Store) History(filename string) []*types.AttemptRecord {
	history := s.snap.Models[filename]
	out := make([]*types.AttemptRecord, len(history))
	for i, rec := range history {
		out[i] = cloneRecord(rec)
	}
	return out
}

// WasRecentlyAttempted reports whether any attempt for filename happened
// within the given window. The scheduler uses this to avoid hammering
// registries for the same missing model.
func (s *Store) WasRecentlyAttempted(filename string, within time.Duration) bool {
	rec := s.snap.latest(filename)
	if rec == nil {
		return false
	}
	at := rec.Timestamp
	if rec.CompletedAt != nil && rec.CompletedAt.After(at) {
		at = *rec.CompletedAt
	}
	if rec.FailedAt != nil && rec.FailedAt.After(at) {
		at = *rec.FailedAt
	}
	return s.now().Sub(at) <= within
}

// Stats aggregates counts by current status plus total downloaded bytes.
type Stats struct {
	Filenames int                         `json:"filenames"`
	Attempts  int                         `json:"attempts"`
	ByStatus  map[types.AttemptStatus]int `json:"by_status"`
	TotalSize int64                       `json:"total_size"`
}

// Stats computes aggregate statistics over the current snapshot.
func (s *Store) Stats() Stats {
	st := Stats{ByStatus: make(map[types.AttemptStatus]int)}
	for _, history := range s.snap.Models {
		st.Filenames++
		st.Attempts += len(history)
		if rec := history[len(history)-1]; rec != nil {
			st.ByStatus[rec.Status]++
			if rec.Status == types.AttemptSuccess {
				st.TotalSize += rec.FileSize
			}
		}
	}
	return st
}

// Validate scans the snapshot for integrity issues and returns a
// human-readable description of each.
func (s *Store) Validate() []string {
	var issues []string
	logIDs := make(map[string]*types.AttemptRecord, len(s.snap.Log))
	for _, rec := range s.snap.Log {
		logIDs[rec.ID] = rec
	}

	for name, history := range s.snap.Models {
		if len(history) == 0 {
			issues = append(issues, fmt.Sprintf("%s: empty history", name))
			continue
		}
		for i, rec := range history {
			switch {
			case rec.ID == "":
				issues = append(issues, fmt.Sprintf("%s[%d]: missing record id", name, i))
			case rec.Filename != name:
				issues = append(issues, fmt.Sprintf("%s[%d]: filename mismatch %q", name, i, rec.Filename))
			}
			switch rec.Status {
			case types.AttemptPending, types.AttemptAttempted, types.AttemptSuccess, types.AttemptFailed:
			default:
				issues = append(issues, fmt.Sprintf("%s[%d]: unknown status %q", name, i, rec.Status))
			}
			if rec.Status == types.AttemptSuccess && rec.FilePath == "" {
				issues = append(issues, fmt.Sprintf("%s[%d]: success without file path", name, i))
			}
			if rec.ID != "" {
				if twin, ok := logIDs[rec.ID]; !ok {
					issues = append(issues, fmt.Sprintf("%s[%d]: record %s missing from global log", name, i, rec.ID))
				} else if twin.Status != rec.Status {
					issues = append(issues, fmt.Sprintf("%s[%d]: log status %q diverges from history %q", name, i, twin.Status, rec.Status))
				}
			}
		}
	}
	return issues
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	RemovedFailed  int `json:"removed_failed"`
	CollapsedDupes int `json:"collapsed_duplicates"`
	RemovedOrphans int `json:"removed_orphan_log_entries"`
	RemainingFiles int `json:"remaining_filenames"`
}

// Cleanup applies retention policy: failed records older than
// retainFailedDays are dropped, and when collapseDuplicates is set repeated
// successes for one filename are collapsed to the most recent. Orphaned
// global-log entries are pruned alongside.
func (s *Store) Cleanup(retainFailedDays int, collapseDuplicates bool) (CleanupResult, error) {
	if retainFailedDays <= 0 {
		retainFailedDays = DefaultRetainFailedDays
	}
	cutoff := s.now().AddDate(0, 0, -retainFailedDays)

	var result CleanupResult
	err := s.mutate(func(snap *Snapshot) error {
		kept := make(map[string]struct{})

		for name, history := range snap.Models {
			var out []*types.AttemptRecord
			lastSuccess := -1
			for _, rec := range history {
				if rec.Status == types.AttemptFailed {
					at := rec.Timestamp
					if rec.FailedAt != nil {
						at = *rec.FailedAt
					}
					if at.Before(cutoff) {
						result.RemovedFailed++
						continue
					}
				}
				out = append(out, rec)
			}

			if collapseDuplicates {
				for i, rec := range out {
					if rec.Status == types.AttemptSuccess {
						lastSuccess = i
					}
				}
				if lastSuccess >= 0 {
					var collapsed []*types.AttemptRecord
					for i, rec := range out {
						if rec.Status == types.AttemptSuccess && i != lastSuccess {
							result.CollapsedDupes++
							continue
						}
						collapsed = append(collapsed, rec)
					}
					out = collapsed
				}
			}

			if len(out) == 0 {
				delete(snap.Models, name)
				continue
			}
			snap.Models[name] = out
			for _, rec := range out {
				kept[rec.ID] = struct{}{}
			}
		}

		var pruned []*types.AttemptRecord
		for _, rec := range snap.Log {
			if _, ok := kept[rec.ID]; ok {
				pruned = append(pruned, rec)
			} else {
				result.RemovedOrphans++
			}
		}
		snap.Log = pruned
		result.RemainingFiles = len(snap.Models)
		return nil
	})
	return result, err
}

// RetryFailed purges histories whose every record failed, clearing the way
// for a fresh resolution attempt. Returns the number of filenames purged.
func (s *Store) RetryFailed() (int, error) {
	purged := 0
	err := s.mutate(func(snap *Snapshot) error {
		for name, history := range snap.Models {
			allFailed := true
			for _, rec := range history {
				if rec.Status != types.AttemptFailed {
					allFailed = false
					break
				}
			}
			if !allFailed {
				continue
			}
			removed := make(map[string]struct{}, len(history))
			for _, rec := range history {
				removed[rec.ID] = struct{}{}
			}
			delete(snap.Models, name)
			var remaining []*types.AttemptRecord
			for _, rec := range snap.Log {
				if _, ok := removed[rec.ID]; !ok {
					remaining = append(remaining, rec)
				}
			}
			snap.Log = remaining
			purged++
		}
		return nil
	})
	return purged, err
}

// Snapshot returns a deep copy of the current state for read-only callers.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Clone()
}
