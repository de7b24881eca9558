package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/clipkeep/internal/classify"
	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/imagecodec"
	"github.com/vonshlovens/clipkeep/internal/poller"
	"github.com/vonshlovens/clipkeep/internal/store"
)

func setup(t *testing.T) (*Service, *store.Store, *clipboard.Memory, *poller.Poller) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	codec := imagecodec.New(0)
	clip := clipboard.NewMemory()
	p := poller.New(clip, classify.New(codec, classify.Options{}), s, poller.Options{})
	return NewService(s, clip, codec, p), s, clip, p
}

func insert(t *testing.T, s *store.Store, e *store.Entry) int64 {
	t.Helper()
	id, _, err := s.InsertOrTouch(context.Background(), e)
	require.NoError(t, err)
	return id
}

func TestCopyToClipboard_Text(t *testing.T) {
	ctx := context.Background()
	svc, s, clip, p := setup(t)

	clip.SetText("first")
	p.Tick(ctx)
	clip.SetText("second")
	p.Tick(ctx)

	entries, err := svc.List(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	first := entries[1]

	copied, err := svc.CopyToClipboard(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", clip.Current().Text)
	assert.Equal(t, int64(1), copied.AccessCount)

	// The poller sees its own write and leaves the entry alone.
	p.Tick(ctx)

	got, err := s.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.True(t, got.Timestamp.Equal(first.Timestamp), "timestamp is not refreshed by copy-back")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCopyToClipboard_File(t *testing.T) {
	ctx := context.Background()
	svc, s, clip, p := setup(t)

	path := filepath.Join(t.TempDir(), "report.pdf")
	id := insert(t, s, &store.Entry{ContentType: store.TypeFile, Content: path, FilePath: path})

	_, err := svc.CopyToClipboard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{clipboard.FileURI(path)}, clip.Current().FileURIs)

	p.Tick(ctx)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCopyToClipboard_Image(t *testing.T) {
	ctx := context.Background()
	svc, s, clip, _ := setup(t)

	id := insert(t, s, &store.Entry{ContentType: store.TypeImage, Content: "aW1hZ2U=", FileSize: 5})

	_, err := svc.CopyToClipboard(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("image"), clip.Current().ImageBytes)
}

func TestCopyToClipboard_UnknownID(t *testing.T) {
	svc, _, clip, _ := setup(t)

	_, err := svc.CopyToClipboard(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, clip.Writes())
}

func TestCopyToClipboard_NoClipboard(t *testing.T) {
	_, s, _, _ := setup(t)
	id := insert(t, s, &store.Entry{ContentType: store.TypeText, Content: "x"})

	_, err := NewService(s, nil, nil, nil).CopyToClipboard(context.Background(), id)
	assert.Error(t, err)
}

func TestToggleFavorite(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := setup(t)
	id := insert(t, s, &store.Entry{ContentType: store.TypeText, Content: "x"})

	on, err := svc.ToggleFavorite(ctx, id)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := svc.ToggleFavorite(ctx, id)
	require.NoError(t, err)
	assert.False(t, off)

	_, err = svc.ToggleFavorite(ctx, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ClearAndStats(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := setup(t)
	keep := insert(t, s, &store.Entry{ContentType: store.TypeText, Content: "keep"})
	insert(t, s, &store.Entry{ContentType: store.TypeText, Content: "drop"})
	require.NoError(t, svc.SetFavorite(ctx, keep, true))

	removed, err := svc.ClearAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Total)
	assert.Equal(t, int64(1), st.Favorites)

	require.NoError(t, svc.Delete(ctx, keep))
	_, err = svc.Get(ctx, keep)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
