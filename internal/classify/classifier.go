// Package classify turns raw clipboard snapshots into typed history entries.
package classify

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/vonshlovens/clipkeep/internal/clipboard"
	"github.com/vonshlovens/clipkeep/internal/fingerprint"
	"github.com/vonshlovens/clipkeep/internal/store"
)

// ErrRejected marks snapshots that never become history entries: empty or
// whitespace text, zero-length payloads, oversized payloads and ignored
// paths.
var ErrRejected = errors.New("clipboard content rejected")

// ImageCodec converts raw images into storable text and preview thumbnails.
type ImageCodec interface {
	Encode(raw []byte) (string, error)
	Thumbnail(raw []byte) ([]byte, error)
}

// Options configures a Classifier.
type Options struct {
	// MaxItemSize rejects payloads larger than this many bytes; 0 disables
	// the check.
	MaxItemSize int64
	// IgnorePatterns are doublestar globs matched against file paths.
	IgnorePatterns []string
	// MaxThumbnailSource bounds the size of image files read for a
	// thumbnail; 0 disables file thumbnails.
	MaxThumbnailSource int64
}

// Classifier picks one content type per snapshot, image over file over text.
type Classifier struct {
	codec ImageCodec
	opts  Options
}

// New creates a Classifier. codec may be nil, in which case image payloads
// are rejected.
func New(codec ImageCodec, opts Options) *Classifier {
	return &Classifier{codec: codec, opts: opts}
}

// Classify builds an entry from snap, with its fingerprint already computed.
func (c *Classifier) Classify(snap clipboard.Snapshot) (*store.Entry, error) {
	var (
		e   *store.Entry
		err error
	)

	switch {
	case len(snap.ImageBytes) > 0:
		e, err = c.image(snap.ImageBytes)
	case len(snap.FileURIs) > 0:
		e, err = c.file(snap.FileURIs[0])
	default:
		e, err = c.text(snap.Text)
	}
	if err != nil {
		return nil, err
	}

	e.Normalize()
	e.ContentHash = fingerprint.Compute(string(e.ContentType), []byte(e.Content), e.FilePath)
	return e, nil
}

func (c *Classifier) text(text string) (*store.Entry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrRejected)
	}
	if err := c.checkSize(int64(len(text))); err != nil {
		return nil, err
	}
	return &store.Entry{
		ContentType: store.TypeText,
		Content:     text,
		MimeType:    "text/plain",
	}, nil
}

func (c *Classifier) file(uri string) (*store.Entry, error) {
	path := strings.TrimSpace(clipboard.LocalPath(uri))
	if path == "" {
		return nil, fmt.Errorf("%w: empty file path", ErrRejected)
	}
	if c.shouldIgnore(path) {
		return nil, fmt.Errorf("%w: ignored path %s", ErrRejected, path)
	}

	e := &store.Entry{
		ContentType: store.TypeFile,
		Content:     path,
		FilePath:    path,
		MimeType:    mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
	}

	// A file that vanished or cannot be read still makes an entry.
	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("file reference not readable", "path", path, "error", err)
		return e, nil
	}
	if !info.IsDir() {
		e.FileSize = info.Size()
		if e.MimeType == "" {
			if mt, err := mimetype.DetectFile(path); err == nil {
				e.MimeType = mt.String()
			}
		}
		e.Thumbnail = c.fileThumbnail(path, e.MimeType, info.Size())
	}
	return e, nil
}

func (c *Classifier) image(raw []byte) (*store.Entry, error) {
	if c.codec == nil {
		return nil, fmt.Errorf("%w: no image codec configured", ErrRejected)
	}
	if err := c.checkSize(int64(len(raw))); err != nil {
		return nil, err
	}

	encoded, err := c.codec.Encode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty image payload", ErrRejected)
	}

	thumb, err := c.codec.Thumbnail(raw)
	if err != nil {
		slog.Debug("thumbnail failed", "error", err)
		thumb = nil
	}

	return &store.Entry{
		ContentType: store.TypeImage,
		Content:     encoded,
		FileSize:    int64(len(raw)),
		MimeType:    mimetype.Detect(raw).String(),
		Thumbnail:   thumb,
	}, nil
}

func (c *Classifier) fileThumbnail(path, mimeType string, size int64) []byte {
	if c.codec == nil || c.opts.MaxThumbnailSource <= 0 || size > c.opts.MaxThumbnailSource {
		return nil
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	thumb, err := c.codec.Thumbnail(raw)
	if err != nil {
		slog.Debug("file thumbnail failed", "path", path, "error", err)
		return nil
	}
	return thumb
}

func (c *Classifier) checkSize(n int64) error {
	if n == 0 {
		return fmt.Errorf("%w: zero-length payload", ErrRejected)
	}
	if c.opts.MaxItemSize > 0 && n > c.opts.MaxItemSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrRejected, n, c.opts.MaxItemSize)
	}
	return nil
}

// shouldIgnore checks if a path matches any ignore pattern
func (c *Classifier) shouldIgnore(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, pattern := range c.opts.IgnorePatterns {
		matched, err := doublestar.Match(pattern, slashed)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
