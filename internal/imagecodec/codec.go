// Package imagecodec turns raw clipboard images into storable payloads and
// small previews.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailPx is the bounding box edge used when none is configured.
const DefaultThumbnailPx = 64

// PNG stores images as base64 text and renders PNG thumbnails.
type PNG struct {
	thumbPx int
}

// New returns a codec producing thumbnails that fit in a px×px box.
func New(px int) *PNG {
	if px <= 0 {
		px = DefaultThumbnailPx
	}
	return &PNG{thumbPx: px}
}

// Encode validates raw as a decodable image and returns its base64 form.
func (c *PNG) Encode(raw []byte) (string, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("unrecognised image data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode.
func (c *PNG) Decode(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored image: %w", err)
	}
	return raw, nil
}

// Thumbnail scales raw down to the configured box, keeping the aspect ratio.
// Images already inside the box are re-encoded at their own size.
func (c *PNG) Thumbnail(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	dst := image.NewRGBA(fitBox(src.Bounds(), c.thumbPx))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func fitBox(b image.Rectangle, px int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= px && h <= px {
		return image.Rect(0, 0, max(w, 1), max(h, 1))
	}
	if w >= h {
		return image.Rect(0, 0, px, max(h*px/w, 1))
	}
	return image.Rect(0, 0, max(w*px/h, 1), px)
}
