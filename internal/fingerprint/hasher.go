// Package fingerprint computes the content digests used as history dedup keys.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the dedup key of a clipboard item. File items are identified
// by their path, every other kind by its content. The type tag keeps a text
// item and a file item with the same string apart.
func Compute(contentType string, content []byte, filePath string) string {
	h := sha256.New()
	h.Write([]byte(contentType))
	h.Write([]byte{0})
	if contentType == "file" {
		h.Write([]byte(filePath))
	} else {
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashContent computes SHA256 hash of content bytes
func HashContent(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// HashString computes SHA256 hash of a string
func HashString(content string) string {
	return HashContent([]byte(content))
}
