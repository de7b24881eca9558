package history

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/store"
)

// DefaultHandoffTTL bounds how long a copy-back marker stays claimable.
const DefaultHandoffTTL = 5 * time.Second

type handoffMarker struct {
	Hash string    `json:"hash"`
	At   time.Time `json:"at"`
}

// Handoff passes the self-write guard between processes through a small file.
// A one-shot command marks what it places on the clipboard; the daemon's
// poller claims the marker when it observes that content.
type Handoff struct {
	fsys  afero.Fs
	path  string
	ttl   time.Duration
	clock store.Clock

	mu sync.Mutex
}

// NewHandoff creates a handoff backed by path on fsys.
func NewHandoff(fsys afero.Fs, path string, clock store.Clock) *Handoff {
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &Handoff{fsys: fsys, path: path, ttl: DefaultHandoffTTL, clock: clock}
}

// MarkSeen records hash as written by this application.
func (h *Handoff) MarkSeen(_ clipboard.Snapshot, hash string) {
	if hash == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(handoffMarker{Hash: hash, At: h.clock.NowUTC()})
	if err != nil {
		return
	}
	if err := h.fsys.MkdirAll(filepath.Dir(h.path), 0755); err != nil {
		slog.Warn("failed to create handoff directory", "error", err)
		return
	}
	if err := afero.WriteFile(h.fsys, h.path, data, 0600); err != nil {
		slog.Warn("failed to write copy handoff", "path", h.path, "error", err)
	}
}

// Claim reports whether hash was marked recently, consuming the marker.
// Expired or unreadable markers are removed and never match.
func (h *Handoff) Claim(hash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := afero.ReadFile(h.fsys, h.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("failed to read copy handoff", "error", err)
		}
		return false
	}

	var m handoffMarker
	valid := json.Unmarshal(data, &m) == nil && h.clock.NowUTC().Sub(m.At) <= h.ttl
	if valid && m.Hash != hash {
		// Someone else's copy may still be on its way.
		return false
	}

	if err := h.fsys.Remove(h.path); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove copy handoff", "error", err)
	}
	return valid
}
