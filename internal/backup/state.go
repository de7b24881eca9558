package backup

import (
	"encoding/json"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// RunState is the persisted outcome of the last synchronizer runs.
type RunState struct {
	ArtifactPath string     `json:"artifact_path"`
	LastBackup   *time.Time `json:"last_backup,omitempty"`
	LastExportID string     `json:"last_export_id,omitempty"`
	LastWritten  int        `json:"last_written"`
	TotalWritten int64      `json:"total_written"`
	LastError    string     `json:"last_error,omitempty"`
}

// StateTracker keeps RunState in a small JSON file.
type StateTracker struct {
	fsys     afero.Fs
	filePath string
	state    *RunState
	mu       sync.RWMutex
	dirty    bool
}

// NewStateTracker loads the state at filePath. A missing or unreadable file
// starts a fresh state, as does one recorded for a different artifact.
func NewStateTracker(fsys afero.Fs, filePath, artifactPath string) *StateTracker {
	st := &StateTracker{
		fsys:     fsys,
		filePath: filePath,
		state:    &RunState{ArtifactPath: artifactPath},
	}

	if err := st.load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// Ignore and start over
		st.state = &RunState{ArtifactPath: artifactPath}
	}

	if st.state.ArtifactPath != artifactPath {
		st.state = &RunState{ArtifactPath: artifactPath}
	}

	return st
}

func (st *StateTracker) load() error {
	data, err := afero.ReadFile(st.fsys, st.filePath)
	if err != nil {
		return err
	}

	state := &RunState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	st.state = state
	return nil
}

// Save persists state to disk
func (st *StateTracker) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}

	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return err
	}

	if err := writeAtomic(st.fsys, st.filePath, data); err != nil {
		return err
	}

	st.dirty = false
	return nil
}

// RecordSuccess notes a completed incremental run.
func (st *StateTracker) RecordSuccess(at time.Time, exportID string, written int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.LastBackup = &at
	st.state.LastExportID = exportID
	st.state.LastWritten = written
	st.state.TotalWritten += int64(written)
	st.state.LastError = ""
	st.dirty = true
}

// RecordFailure notes a failed run without losing the last success.
func (st *StateTracker) RecordFailure(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.LastError = err.Error()
	st.dirty = true
}

// Snapshot returns a copy of the current state.
func (st *StateTracker) Snapshot() RunState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return *st.state
}
