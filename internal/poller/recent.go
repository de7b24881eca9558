package poller

import "time"

// recentHashes remembers fingerprints ingested within a sliding window so a
// rapid A, B, A sequence does not touch A twice.
type recentHashes struct {
	window time.Duration
	seen   map[string]time.Time
}

func newRecentHashes(window time.Duration) *recentHashes {
	return &recentHashes{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

func (r *recentHashes) contains(hash string, now time.Time) bool {
	if r.window <= 0 {
		return false
	}
	at, ok := r.seen[hash]
	return ok && now.Sub(at) < r.window
}

func (r *recentHashes) add(hash string, now time.Time) {
	if r.window <= 0 {
		return
	}
	r.seen[hash] = now

	for h, at := range r.seen {
		if now.Sub(at) >= r.window {
			delete(r.seen, h)
		}
	}
}

func (r *recentHashes) size() int {
	return len(r.seen)
}
