// Package history is the query and command surface that user-facing
// collaborators call into. It wraps the store and owns copy-back to the
// clipboard.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/store"
)

// ImageDecoder turns a stored image back into raw bytes for the clipboard.
type ImageDecoder interface {
	Decode(stored string) ([]byte, error)
}

// SeenMarker is told about content the service places on the clipboard.
// *poller.Poller satisfies it in-process, *Handoff across processes.
type SeenMarker interface {
	MarkSeen(snap clipboard.Snapshot, hash string)
}

// Service serves history reads and mutations.
type Service struct {
	store   *store.Store
	clip    clipboard.Clipboard
	decoder ImageDecoder
	seen    SeenMarker
}

// NewService creates a service. clip, decoder and seen may be nil; copy-back
// then fails, or skips the self-write guard when only seen is nil.
func NewService(s *store.Store, clip clipboard.Clipboard, decoder ImageDecoder, seen SeenMarker) *Service {
	return &Service{store: s, clip: clip, decoder: decoder, seen: seen}
}

func (s *Service) List(ctx context.Context, f store.Filter) ([]*store.Entry, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id int64) (*store.Entry, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) TouchAccess(ctx context.Context, id int64) error {
	return s.store.TouchAccess(ctx, id)
}

func (s *Service) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.store.SetFavorite(ctx, id, favorite)
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, id int64) (bool, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.store.SetFavorite(ctx, id, !e.IsFavorite); err != nil {
		return false, err
	}
	return !e.IsFavorite, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) ClearAll(ctx context.Context, keepFavorites bool) (int64, error) {
	return s.store.ClearAll(ctx, keepFavorites)
}

func (s *Service) Stats(ctx context.Context) (*store.Status, error) {
	return s.store.Status(ctx)
}

// CopyToClipboard places an entry back on the clipboard and counts the
// access. The poller is told first so it does not ingest the write.
func (s *Service) CopyToClipboard(ctx context.Context, id int64) (*store.Entry, error) {
	if s.clip == nil {
		return nil, fmt.Errorf("no clipboard available")
	}

	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshotFor(e)
	if err != nil {
		return nil, err
	}

	if s.seen != nil {
		s.seen.MarkSeen(snap, e.ContentHash)
	}
	if err := s.clip.WriteSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to write clipboard: %w", err)
	}

	if err := s.store.TouchAccess(ctx, id); err != nil {
		return nil, err
	}
	e.AccessCount++

	slog.Debug("entry copied to clipboard", "id", id, "type", e.ContentType)
	return e, nil
}

// snapshotFor builds the snapshot a platform clipboard reports back after the
// write, so the poller's equality check matches it.
func (s *Service) snapshotFor(e *store.Entry) (clipboard.Snapshot, error) {
	switch e.ContentType {
	case store.TypeText:
		return clipboard.Snapshot{Text: e.Content}, nil
	case store.TypeFile:
		uri := clipboard.FileURI(e.FilePath)
		return clipboard.Snapshot{Text: uri, FileURIs: []string{uri}}, nil
	case store.TypeImage:
		if s.decoder == nil {
			return clipboard.Snapshot{}, fmt.Errorf("no image decoder available")
		}
		raw, err := s.decoder.Decode(e.Content)
		if err != nil {
			return clipboard.Snapshot{}, fmt.Errorf("failed to decode image %d: %w", e.ID, err)
		}
		return clipboard.Snapshot{ImageBytes: raw}, nil
	default:
		return clipboard.Snapshot{}, fmt.Errorf("unknown content type %q", e.ContentType)
	}
}
