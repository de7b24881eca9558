// Package backup writes history entries to JSON or YAML artifacts, either
// incrementally into a rolling backup or as standalone exports, and reads
// them back.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/vonshlovens/clipkeep/internal/store"
)

// ErrExportWrite means the artifact could not be written. No entry is marked
// backed up when an incremental run fails with it.
var ErrExportWrite = errors.New("export artifact could not be written")

// Source is the part of the history store the synchronizer needs.
// *store.Store satisfies it.
type Source interface {
	UnbackedUp(ctx context.Context) ([]*store.Entry, error)
	MarkBackedUp(ctx context.Context, ids []int64) (int64, error)
	List(ctx context.Context, f store.Filter) ([]*store.Entry, error)
	Restore(ctx context.Context, e *store.Entry) (int64, bool, error)
}

// Options configures a Synchronizer.
type Options struct {
	// ArtifactPath is the rolling backup written by Incremental.
	ArtifactPath string
	// LockPath serializes writers of the backup artifact across processes.
	// Empty disables locking.
	LockPath string
	// Progress receives progress bars; nil disables them.
	Progress io.Writer
	// State records run outcomes; nil disables tracking.
	State *StateTracker
	Clock store.Clock
}

// Result summarizes one run.
type Result struct {
	Path     string
	ExportID string
	// Written is the number of entries newly written (or restored, on import).
	Written int
	// Total is the number of records in the artifact.
	Total int
}

// Synchronizer moves entries between the store and artifacts on fsys.
type Synchronizer struct {
	src   Source
	fsys  afero.Fs
	opts  Options
	clock store.Clock
}

// New creates a synchronizer. Use afero.NewOsFs() in production.
func New(src Source, fsys afero.Fs, opts Options) *Synchronizer {
	clock := opts.Clock
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &Synchronizer{src: src, fsys: fsys, opts: opts, clock: clock}
}

// State returns the recorded run state, or nil when tracking is disabled.
func (s *Synchronizer) State() *RunState {
	if s.opts.State == nil {
		return nil
	}
	st := s.opts.State.Snapshot()
	return &st
}

// Incremental appends every not-yet-backed-up entry to the rolling artifact
// and then marks exactly those entries backed up.
func (s *Synchronizer) Incremental(ctx context.Context) (Result, error) {
	path := s.opts.ArtifactPath
	if path == "" {
		return Result{}, fmt.Errorf("%w: no backup path configured", ErrExportWrite)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	pending, err := s.src.UnbackedUp(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read unbacked entries: %w", err)
	}
	if len(pending) == 0 {
		slog.Debug("nothing to back up")
		return Result{Path: path}, nil
	}

	start := time.Now()
	prior, err := s.readPrior(path)
	if err != nil {
		s.recordFailure(err)
		return Result{}, err
	}

	fresh := s.records(pending, "Backing up")
	items := mergeRecords(fresh, prior.Items)

	doc := &Document{
		Info:  s.info(len(items), false, true),
		Items: items,
	}

	if err := s.write(path, doc); err != nil {
		s.recordFailure(err)
		return Result{}, err
	}

	ids := make([]int64, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
	}
	if _, err := s.src.MarkBackedUp(ctx, ids); err != nil {
		s.recordFailure(err)
		return Result{}, fmt.Errorf("failed to mark entries backed up: %w", err)
	}

	if s.opts.State != nil {
		s.opts.State.RecordSuccess(doc.Info.Timestamp, doc.Info.ExportID, len(fresh))
		if err := s.opts.State.Save(); err != nil {
			slog.Warn("failed to save backup state", "error", err)
		}
	}

	slog.Info("backup completed",
		"path", path,
		"written", len(fresh),
		"total", len(items),
		"duration_ms", time.Since(start).Milliseconds())

	return Result{Path: path, ExportID: doc.Info.ExportID, Written: len(fresh), Total: len(items)}, nil
}

// Export writes the full current history, or only favorites, into a
// standalone artifact. Backed-up flags and the rolling artifact are left
// alone.
func (s *Synchronizer) Export(ctx context.Context, path string, favoritesOnly bool) (Result, error) {
	entries, err := s.src.List(ctx, store.Filter{FavoritesOnly: favoritesOnly})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read history: %w", err)
	}

	items := s.records(entries, "Exporting")
	doc := &Document{
		Info:  s.info(len(items), favoritesOnly, false),
		Items: items,
	}

	if err := s.write(path, doc); err != nil {
		return Result{}, err
	}

	slog.Info("export completed", "path", path, "items", len(items), "favorites_only", favoritesOnly)
	return Result{Path: path, ExportID: doc.Info.ExportID, Written: len(items), Total: len(items)}, nil
}

// Import restores the records of an artifact whose fingerprints are not yet
// in the store. Records with an unknown content type are skipped.
func (s *Synchronizer) Import(ctx context.Context, path string) (Result, error) {
	doc, err := ReadArtifact(s.fsys, path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read artifact: %w", err)
	}

	bar := s.bar(len(doc.Items), "Importing")
	restored := 0

	for _, r := range doc.Items {
		bar.Add(1)

		e, err := r.Entry()
		if err != nil {
			slog.Warn("skipping invalid record", "id", r.ID, "error", err)
			continue
		}

		_, created, err := s.src.Restore(ctx, e)
		if err != nil {
			return Result{Path: path, Written: restored, Total: len(doc.Items)},
				fmt.Errorf("failed to restore record %d: %w", r.ID, err)
		}
		if created {
			restored++
		}
	}
	bar.Finish()

	slog.Info("import completed", "path", path, "restored", restored, "records", len(doc.Items))
	return Result{Path: path, ExportID: doc.Info.ExportID, Written: restored, Total: len(doc.Items)}, nil
}

// readPrior loads the existing rolling artifact. A missing one counts as
// empty. One that cannot be decoded is renamed aside, keeping its records on
// disk, and a new artifact is started. Any other read failure aborts the run
// so the prior records are never overwritten.
func (s *Synchronizer) readPrior(path string) (*Document, error) {
	doc, err := ReadArtifact(s.fsys, path)
	switch {
	case err == nil:
		return doc, nil

	case errors.Is(err, os.ErrNotExist):
		return &Document{}, nil

	case errors.Is(err, ErrMalformedArtifact):
		aside := fmt.Sprintf("%s.corrupt-%d", path, s.clock.NowUTC().Unix())
		if rerr := s.fsys.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("%w: existing backup is malformed and could not be moved aside: %w", ErrExportWrite, rerr)
		}
		slog.Warn("existing backup malformed, moved aside", "path", path, "moved_to", aside, "error", err)
		return &Document{}, nil

	default:
		return nil, fmt.Errorf("%w: failed to read existing backup: %w", ErrExportWrite, err)
	}
}

func (s *Synchronizer) write(path string, doc *Document) error {
	data, err := Marshal(doc, FormatFor(path))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExportWrite, err)
	}
	if err := writeAtomic(s.fsys, path, data); err != nil {
		return fmt.Errorf("%w: %w", ErrExportWrite, err)
	}
	return nil
}

func (s *Synchronizer) records(entries []*store.Entry, desc string) []Record {
	bar := s.bar(len(entries), desc)
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewRecord(e))
		bar.Add(1)
	}
	bar.Finish()
	return out
}

func (s *Synchronizer) info(total int, favoritesOnly, auto bool) Info {
	return Info{
		ExportID:      uuid.NewString(),
		Timestamp:     s.clock.NowUTC(),
		TotalItems:    total,
		FavoritesOnly: favoritesOnly,
		Version:       ArtifactVersion,
		AutoBackup:    auto,
	}
}

func (s *Synchronizer) bar(n int, desc string) *progressbar.ProgressBar {
	if s.opts.Progress == nil {
		return progressbar.DefaultSilent(int64(n))
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(s.opts.Progress),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

func (s *Synchronizer) lock(ctx context.Context) (func(), error) {
	if s.opts.LockPath == "" {
		return func() {}, nil
	}

	fl := flock.New(s.opts.LockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to lock backup: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock backup: %s is held", s.opts.LockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("failed to release backup lock", "error", err)
		}
	}, nil
}

func (s *Synchronizer) recordFailure(err error) {
	if s.opts.State == nil {
		return
	}
	s.opts.State.RecordFailure(err)
	if err := s.opts.State.Save(); err != nil {
		slog.Warn("failed to save backup state", "error", err)
	}
}
