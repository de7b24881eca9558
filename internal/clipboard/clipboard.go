// Package clipboard defines the clipboard resource the poller samples and the
// adapters that implement it.
package clipboard

import (
	"bytes"
	"context"
	"errors"
	"slices"
)

// ErrTransient reports that the clipboard could not be read right now, for
// example because another process holds it. Callers retry on the next tick.
var ErrTransient = errors.New("clipboard temporarily unreadable")

// Snapshot is one multi-format view of the clipboard. Any combination of the
// fields may be set at once.
type Snapshot struct {
	Text       string
	FileURIs   []string
	ImageBytes []byte
}

// Empty reports whether the snapshot carries no payload at all.
func (s Snapshot) Empty() bool {
	return s.Text == "" && len(s.FileURIs) == 0 && len(s.ImageBytes) == 0
}

// Equal compares two snapshots. Image payloads of different length are
// rejected before their bytes are looked at.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s.ImageBytes) != len(o.ImageBytes) || s.Text != o.Text {
		return false
	}
	if !slices.Equal(s.FileURIs, o.FileURIs) {
		return false
	}
	return bytes.Equal(s.ImageBytes, o.ImageBytes)
}

// Clipboard is the shared resource observed by the poller.
type Clipboard interface {
	// ReadSnapshot returns the current content. It must honour ctx and
	// return ErrTransient when the read cannot complete in time.
	ReadSnapshot(ctx context.Context) (Snapshot, error)

	// WriteSnapshot places content on the clipboard.
	WriteSnapshot(ctx context.Context, snap Snapshot) error
}
