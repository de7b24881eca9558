// Package poller samples the clipboard on a fixed interval and records every
// distinct item in the history store.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vonshlovens/clipkeep/internal/classify"
	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/store"
)

const (
	DefaultInterval     = 100 * time.Millisecond
	DefaultReadTimeout  = 500 * time.Millisecond
	DefaultDedupeWindow = time.Second
)

// EventType represents what a tick did with a clipboard change
type EventType int

const (
	EventCreated EventType = iota
	EventTouched
	EventError
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "CREATED"
	case EventTouched:
		return "TOUCHED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event reports one ingestion outcome.
type Event struct {
	Type      EventType
	Entry     *store.Entry
	Err       error
	Timestamp time.Time
}

// Classifier turns a snapshot into an entry.
type Classifier interface {
	Classify(snap clipboard.Snapshot) (*store.Entry, error)
}

// Ingester persists entries. *store.Store satisfies it.
type Ingester interface {
	InsertOrTouch(ctx context.Context, e *store.Entry) (int64, bool, error)
}

// Handoff lets another process announce a clipboard write of its own.
type Handoff interface {
	Claim(hash string) bool
}

// Options tunes the polling loop. A zero Interval or ReadTimeout falls back to
// the default; a zero DedupeWindow disables the window.
type Options struct {
	Interval     time.Duration
	ReadTimeout  time.Duration
	DedupeWindow time.Duration
	Clock        store.Clock
	// Handoff is consulted for changed content only. Nil disables it.
	Handoff Handoff
}

// Poller owns the last-seen clipboard baseline. Each instance keeps its own.
type Poller struct {
	clip       clipboard.Clipboard
	classifier Classifier
	ingester   Ingester
	clock      store.Clock
	handoff    Handoff

	readTimeout time.Duration

	mu       sync.Mutex
	interval time.Duration
	last     clipboard.Snapshot
	// skipOnce is the fingerprint of our own last clipboard write. It lives
	// until the clipboard next changes.
	skipOnce string
	recent   *recentHashes

	resetCh chan struct{}
	events  chan Event
}

// New creates a poller reading clip and writing through ingester.
func New(clip clipboard.Clipboard, classifier Classifier, ingester Ingester, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.DedupeWindow < 0 {
		opts.DedupeWindow = 0
	}
	if opts.Clock == nil {
		opts.Clock = store.SystemClock{}
	}

	return &Poller{
		clip:        clip,
		classifier:  classifier,
		ingester:    ingester,
		clock:       opts.Clock,
		handoff:     opts.Handoff,
		readTimeout: opts.ReadTimeout,
		interval:    opts.Interval,
		recent:      newRecentHashes(opts.DedupeWindow),
		resetCh:     make(chan struct{}, 1),
		events:      make(chan Event, 100),
	}
}

// Events returns the channel of ingestion outcomes. Sends never block the
// loop; events are dropped when nobody is reading.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Interval returns the current tick interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the tick interval of a running loop.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}

	p.mu.Lock()
	changed := p.interval != d
	p.interval = d
	p.mu.Unlock()

	if !changed {
		return
	}
	select {
	case p.resetCh <- struct{}{}:
	default:
	}
}

// MarkSeen records content the application itself is about to place on the
// clipboard, so the next tick does not ingest it as an external change. The
// hash covers a read back in a different shape than snap; it is dropped on
// the first change observed, whatever that change is.
func (p *Poller) MarkSeen(snap clipboard.Snapshot, hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.last = snap
	p.skipOnce = hash
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	slog.Info("poller started", "interval", p.Interval())

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return nil

		case <-p.resetCh:
			d := p.Interval()
			ticker.Reset(d)
			slog.Info("poll interval changed", "interval", d)

		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one read-compare-ingest cycle.
func (p *Poller) Tick(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, p.readTimeout)
	snap, err := p.clip.ReadSnapshot(readCtx)
	cancel()
	if err != nil {
		// Unreadable this tick; the baseline stays so the next read compares
		// against the last good snapshot.
		if !errors.Is(err, clipboard.ErrTransient) {
			slog.Debug("clipboard read failed", "error", err)
		}
		return
	}

	p.mu.Lock()
	if snap.Equal(p.last) {
		p.mu.Unlock()
		return
	}
	p.last = snap
	skip := p.skipOnce
	p.skipOnce = ""
	p.mu.Unlock()

	if snap.Empty() {
		return
	}

	entry, err := p.classifier.Classify(snap)
	if err != nil {
		if errors.Is(err, classify.ErrRejected) {
			slog.Debug("clipboard content skipped", "reason", err)
		} else {
			slog.Warn("failed to classify clipboard content", "error", err)
		}
		return
	}

	now := p.clock.NowUTC()

	if skip != "" && entry.ContentHash == skip {
		slog.Debug("skipping own clipboard write", "hash", entry.ContentHash)
		return
	}
	if p.handoff != nil && p.handoff.Claim(entry.ContentHash) {
		slog.Debug("skipping clipboard write handed off by another process", "hash", entry.ContentHash)
		return
	}

	p.mu.Lock()
	if p.recent.contains(entry.ContentHash, now) {
		p.mu.Unlock()
		slog.Debug("skipping recently ingested content", "hash", entry.ContentHash)
		return
	}
	p.mu.Unlock()

	id, created, err := p.ingester.InsertOrTouch(ctx, entry)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.last = clipboard.Snapshot{}
		p.mu.Unlock()

		slog.Error("failed to store clipboard entry", "type", entry.ContentType, "error", err)
		p.emit(Event{Type: EventError, Entry: entry, Err: err, Timestamp: now})
		return
	}

	p.mu.Lock()
	p.recent.add(entry.ContentHash, now)
	p.mu.Unlock()

	evType := EventTouched
	if created {
		evType = EventCreated
	}
	slog.Debug("clipboard entry stored", "id", id, "type", entry.ContentType, "event", evType)
	p.emit(Event{Type: evType, Entry: entry, Timestamp: now})
}

func (p *Poller) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Debug("event dropped, channel full", "event", ev.Type)
	}
}
