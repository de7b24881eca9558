package classify

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/fingerprint"
	"github.com/vonshlovens/clipkeep/internal/store"
)

// pngHeader is enough for mime sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeCodec struct {
	thumbErr error
	calls    int
}

func (f *fakeCodec) Encode(raw []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (f *fakeCodec) Thumbnail(raw []byte) ([]byte, error) {
	f.calls++
	if f.thumbErr != nil {
		return nil, f.thumbErr
	}
	return []byte("thumb"), nil
}

func TestClassify_RejectsEmptyText(t *testing.T) {
	c := New(&fakeCodec{}, Options{})
	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := c.Classify(clipboard.Snapshot{Text: text})
		assert.ErrorIs(t, err, ErrRejected, "text %q", text)
	}
}

func TestClassify_Text(t *testing.T) {
	c := New(&fakeCodec{}, Options{})
	e, err := c.Classify(clipboard.Snapshot{Text: "  hello  "})
	require.NoError(t, err)

	assert.Equal(t, store.TypeText, e.ContentType)
	assert.Equal(t, "  hello  ", e.Content, "text is stored literally")
	assert.Equal(t, "text/plain", e.MimeType)
	assert.Empty(t, e.FilePath)
	assert.Zero(t, e.FileSize)
	assert.Equal(t, fingerprint.Compute("text", []byte("  hello  "), ""), e.ContentHash)
}

func TestClassify_TextTooLarge(t *testing.T) {
	c := New(&fakeCodec{}, Options{MaxItemSize: 4})
	_, err := c.Classify(clipboard.Snapshot{Text: "12345"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestClassify_PriorityImageOverFileOverText(t *testing.T) {
	c := New(&fakeCodec{}, Options{})
	snap := clipboard.Snapshot{
		Text:       "caption",
		FileURIs:   []string{"file:///tmp/a.png"},
		ImageBytes: pngHeader,
	}

	e, err := c.Classify(snap)
	require.NoError(t, err)
	assert.Equal(t, store.TypeImage, e.ContentType)

	snap.ImageBytes = nil
	e, err = c.Classify(snap)
	require.NoError(t, err)
	assert.Equal(t, store.TypeFile, e.ContentType)

	snap.FileURIs = nil
	e, err = c.Classify(snap)
	require.NoError(t, err)
	assert.Equal(t, store.TypeText, e.ContentType)
}

func TestClassify_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	c := New(&fakeCodec{}, Options{})
	e, err := c.Classify(clipboard.Snapshot{FileURIs: []string{clipboard.FileURI(path)}})
	require.NoError(t, err)

	assert.Equal(t, store.TypeFile, e.ContentType)
	assert.Equal(t, path, e.FilePath)
	assert.Equal(t, path, e.Content)
	assert.Equal(t, int64(10), e.FileSize)
	assert.Contains(t, e.MimeType, "text/plain")
	assert.Nil(t, e.Thumbnail)
	assert.Equal(t, fingerprint.Compute("file", nil, path), e.ContentHash)
}

func TestClassify_SniffsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picture.unknownext")
	require.NoError(t, os.WriteFile(path, pngHeader, 0644))

	e, err := New(&fakeCodec{}, Options{}).Classify(clipboard.Snapshot{FileURIs: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, "image/png", e.MimeType)
}

func TestClassify_MissingFileStillEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.bin")

	e, err := New(&fakeCodec{}, Options{}).Classify(clipboard.Snapshot{FileURIs: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, store.TypeFile, e.ContentType)
	assert.Zero(t, e.FileSize)
	assert.Equal(t, path, e.FilePath)
}

func TestClassify_EmptyFilePath(t *testing.T) {
	_, err := New(&fakeCodec{}, Options{}).Classify(clipboard.Snapshot{FileURIs: []string{"file://"}})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestClassify_IgnoredPath(t *testing.T) {
	dir := t.TempDir()
	c := New(&fakeCodec{}, Options{IgnorePatterns: []string{filepath.ToSlash(dir) + "/**/*.secret"}})

	_, err := c.Classify(clipboard.Snapshot{FileURIs: []string{filepath.Join(dir, "keys", "id.secret")}})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = c.Classify(clipboard.Snapshot{FileURIs: []string{filepath.Join(dir, "notes.txt")}})
	assert.NoError(t, err)
}

func TestClassify_ImageFileGetsThumbnail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0644))

	codec := &fakeCodec{}
	e, err := New(codec, Options{MaxThumbnailSource: 1 << 20}).Classify(clipboard.Snapshot{FileURIs: []string{path}})
	require.NoError(t, err)
	assert.Equal(t, []byte("thumb"), e.Thumbnail)
	assert.Equal(t, 1, codec.calls)
}

func TestClassify_Image(t *testing.T) {
	e, err := New(&fakeCodec{}, Options{}).Classify(clipboard.Snapshot{ImageBytes: pngHeader})
	require.NoError(t, err)

	assert.Equal(t, store.TypeImage, e.ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngHeader), e.Content)
	assert.Equal(t, int64(len(pngHeader)), e.FileSize)
	assert.Equal(t, "image/png", e.MimeType)
	assert.Equal(t, []byte("thumb"), e.Thumbnail)
	assert.Empty(t, e.FilePath)
}

func TestClassify_ImageThumbnailFailureKeepsEntry(t *testing.T) {
	codec := &fakeCodec{thumbErr: errors.New("corrupt")}
	e, err := New(codec, Options{}).Classify(clipboard.Snapshot{ImageBytes: pngHeader})
	require.NoError(t, err)
	assert.Nil(t, e.Thumbnail)
}

func TestClassify_ImageWithoutCodec(t *testing.T) {
	_, err := New(nil, Options{}).Classify(clipboard.Snapshot{ImageBytes: pngHeader})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestIsURL(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"https://example.com/path?q=1", true},
		{"  http://localhost:8080  ", true},
		{"ftp://files.example.org", true},
		{"example.com", false},
		{"not a url", false},
		{"https://example.com and more", false},
		{"", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, IsURL(tt.input))
		})
	}
}

func TestExtractURLs(t *testing.T) {
	text := "See https://go.dev/doc, then www.example.com. Also https://go.dev/doc again."
	assert.Equal(t, []string{"https://go.dev/doc", "www.example.com"}, ExtractURLs(text))
	assert.Nil(t, ExtractURLs("nothing here"))
}
