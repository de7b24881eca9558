package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/clipkeep/internal/classify"
	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/imagecodec"
	"github.com/vonshlovens/clipkeep/internal/poller"
	"github.com/vonshlovens/clipkeep/internal/store"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) NowUTC() time.Time {
	return c.now
}

const handoffPath = "/state/copy.json"

func TestHandoff_ClaimConsumesMarker(t *testing.T) {
	fsys := afero.NewMemMapFs()
	h := NewHandoff(fsys, handoffPath, &manualClock{now: time.Unix(1700000000, 0)})

	h.MarkSeen(clipboard.Snapshot{}, "abc")
	assert.False(t, h.Claim("other"), "a different hash does not match")
	assert.True(t, h.Claim("abc"))
	assert.False(t, h.Claim("abc"), "a marker matches once")
}

func TestHandoff_ExpiredMarkerIgnored(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	h := NewHandoff(fsys, handoffPath, clock)

	h.MarkSeen(clipboard.Snapshot{}, "abc")
	clock.now = clock.now.Add(DefaultHandoffTTL + time.Second)

	assert.False(t, h.Claim("abc"))
	exists, err := afero.Exists(fsys, handoffPath)
	require.NoError(t, err)
	assert.False(t, exists, "stale marker is removed")
}

func TestHandoff_GarbageMarkerIgnored(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, handoffPath, []byte("{"), 0600))

	assert.False(t, NewHandoff(fsys, handoffPath, nil).Claim("abc"))
}

func TestHandoff_CopyFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fsys := afero.NewMemMapFs()
	clip := clipboard.NewMemory()
	codec := imagecodec.New(0)

	// The daemon and the one-shot command share only the clipboard and the
	// handoff file.
	daemon := poller.New(clip, classify.New(codec, classify.Options{}), s, poller.Options{
		Handoff: NewHandoff(fsys, handoffPath, nil),
	})
	cli := NewService(s, clip, codec, NewHandoff(fsys, handoffPath, nil))

	clip.SetText("first")
	daemon.Tick(ctx)
	clip.SetText("second")
	daemon.Tick(ctx)

	entries, err := s.List(ctx, store.Filter{})
	require.NoError(t, err)
	first := entries[1]

	_, err = cli.CopyToClipboard(ctx, first.ID)
	require.NoError(t, err)
	daemon.Tick(ctx)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(first.Timestamp), "daemon skips the handed-off write")
	assert.Equal(t, int64(1), got.AccessCount)

	// A later genuine re-copy is recorded again.
	clip.SetText("third")
	daemon.Tick(ctx)
	clip.SetText("first")
	daemon.Tick(ctx)

	got, err = s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.After(first.Timestamp))
}
