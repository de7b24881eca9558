package clipboard

import (
	"context"
	"fmt"
	"strings"
	"sync"

	xclip "golang.design/x/clipboard"
)

var initOnce = sync.OnceValue(xclip.Init)

// System is the operating system clipboard. It understands plain text and PNG
// images; file lists arrive as text/uri-list text and are split out here.
type System struct {
	read func() Snapshot

	mu sync.Mutex
	// pending delivers the result of the platform read still in flight, if any.
	pending chan Snapshot
}

// NewSystem initialises the platform clipboard.
func NewSystem() (*System, error) {
	if err := initOnce(); err != nil {
		return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
	}
	return &System{read: readPlatform}, nil
}

func readPlatform() Snapshot {
	var snap Snapshot
	if img := xclip.Read(xclip.FmtImage); len(img) > 0 {
		snap.ImageBytes = img
	}
	if text := xclip.Read(xclip.FmtText); len(text) > 0 {
		snap.Text = string(text)
		snap.FileURIs = ParseURIList(snap.Text)
	}
	return snap
}

// ReadSnapshot reads both formats. The platform call cannot be interrupted,
// so it runs in its own goroutine and an expired ctx is reported as
// ErrTransient. At most one platform read runs at a time; later calls wait on
// the one in flight instead of starting another.
func (s *System) ReadSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.pending
	if done == nil {
		done = make(chan Snapshot, 1)
		s.pending = done
		go func() {
			snap := s.read()
			s.mu.Lock()
			s.pending = nil
			s.mu.Unlock()
			done <- snap
		}()
	}
	s.mu.Unlock()

	select {
	case snap := <-done:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
	}
}

// WriteSnapshot writes the highest-fidelity format present in snap.
func (s *System) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	switch {
	case len(snap.ImageBytes) > 0:
		xclip.Write(xclip.FmtImage, snap.ImageBytes)
	case len(snap.FileURIs) > 0:
		xclip.Write(xclip.FmtText, []byte(strings.Join(snap.FileURIs, "\n")))
	case snap.Text != "":
		xclip.Write(xclip.FmtText, []byte(snap.Text))
	default:
		return fmt.Errorf("nothing to write")
	}
	return ctx.Err()
}
