package clipboard

import (
	"context"
	"sync"
)

// Memory is an in-process clipboard. It backs headless runs and tests.
type Memory struct {
	mu      sync.Mutex
	current Snapshot
	failing int
	reads   int
	writes  int
}

// NewMemory returns an empty in-process clipboard.
func NewMemory() *Memory {
	return &Memory{}
}

// Set replaces the clipboard content as an external program would.
func (m *Memory) Set(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = snap
}

// SetText is shorthand for Set with a text-only snapshot.
func (m *Memory) SetText(text string) {
	m.Set(Snapshot{Text: text})
}

// FailNextReads makes the next n reads return ErrTransient.
func (m *Memory) FailNextReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = n
}

func (m *Memory) ReadSnapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, ErrTransient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.failing > 0 {
		m.failing--
		return Snapshot{}, ErrTransient
	}
	return m.current, nil
}

func (m *Memory) WriteSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.current = snap
	return nil
}

// Current returns the clipboard content without counting as a read.
func (m *Memory) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reads returns how many reads were attempted.
func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns how many writes were made.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
