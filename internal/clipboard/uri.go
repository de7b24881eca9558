package clipboard

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ParseURIList extracts file URIs from a text/uri-list style payload. Comment
// lines are skipped. It returns nil unless every remaining line is a file URI,
// so ordinary text that merely mentions a URI is left alone.
func ParseURIList(text string) []string {
	var uris []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "file://") {
			return nil
		}
		uris = append(uris, line)
	}
	return uris
}

// LocalPath converts a file URI into a local path. Plain paths are returned
// unchanged.
func LocalPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, "file://")
	}
	return filepath.FromSlash(u.Path)
}

// FileURI builds a file URI for an absolute local path.
func FileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
