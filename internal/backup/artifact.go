package backup

import (
	"cmp"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/clipkeep/internal/store"
)

// ArtifactVersion is written into every artifact header.
const ArtifactVersion = "1.0"

// ErrMalformedArtifact means an artifact was read but could not be decoded.
var ErrMalformedArtifact = errors.New("malformed artifact")

// Info is the artifact header.
type Info struct {
	ExportID      string    `json:"export_id,omitempty" yaml:"export_id,omitempty"`
	Timestamp     time.Time `json:"timestamp" yaml:"timestamp"`
	TotalItems    int       `json:"total_items" yaml:"total_items"`
	FavoritesOnly bool      `json:"favorites_only" yaml:"favorites_only"`
	Version       string    `json:"version" yaml:"version"`
	AutoBackup    bool      `json:"auto_backup,omitempty" yaml:"auto_backup,omitempty"`
}

// Record is one exported history entry.
type Record struct {
	ID          int64     `json:"id" yaml:"id"`
	Content     string    `json:"content" yaml:"content"`
	ContentHash string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	ContentType string    `json:"content_type" yaml:"content_type"`
	FilePath    string    `json:"file_path" yaml:"file_path"`
	FileSize    int64     `json:"file_size" yaml:"file_size"`
	MimeType    string    `json:"mime_type" yaml:"mime_type"`
	Thumbnail   *string   `json:"thumbnail" yaml:"thumbnail"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	IsFavorite  bool      `json:"is_favorite" yaml:"is_favorite"`
	AccessCount int64     `json:"access_count" yaml:"access_count"`
}

// Document is a whole export artifact.
type Document struct {
	Info  Info     `json:"export_info" yaml:"export_info"`
	Items []Record `json:"items" yaml:"items"`
}

// Format selects the artifact encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the encoding from the file extension; anything that is not
// .yaml or .yml is JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// NewRecord converts a stored entry into its artifact form.
func NewRecord(e *store.Entry) Record {
	r := Record{
		ID:          e.ID,
		Content:     e.Content,
		ContentHash: e.ContentHash,
		ContentType: string(e.ContentType),
		FilePath:    e.FilePath,
		FileSize:    e.FileSize,
		MimeType:    e.MimeType,
		Timestamp:   e.Timestamp.UTC(),
		IsFavorite:  e.IsFavorite,
		AccessCount: e.AccessCount,
	}
	if len(e.Thumbnail) > 0 {
		thumb := base64.StdEncoding.EncodeToString(e.Thumbnail)
		r.Thumbnail = &thumb
	}
	return r
}

// Entry converts a record back into an entry ready for Store.Restore. The id
// is not carried over; the store assigns a fresh one.
func (r Record) Entry() (*store.Entry, error) {
	ct, err := store.ParseContentType(r.ContentType)
	if err != nil {
		return nil, err
	}

	e := &store.Entry{
		Content:     r.Content,
		ContentHash: r.ContentHash,
		ContentType: ct,
		FilePath:    r.FilePath,
		FileSize:    r.FileSize,
		MimeType:    r.MimeType,
		Timestamp:   r.Timestamp.UTC(),
		IsFavorite:  r.IsFavorite,
		AccessCount: r.AccessCount,
	}
	if r.Thumbnail != nil {
		thumb, err := base64.StdEncoding.DecodeString(*r.Thumbnail)
		if err != nil {
			return nil, fmt.Errorf("invalid thumbnail for record %d: %w", r.ID, err)
		}
		e.Thumbnail = thumb
	}
	return e, nil
}

// mergeRecords puts fresh records in front of prior ones, keeps the first
// occurrence of every id and orders the result newest first.
func mergeRecords(fresh, prior []Record) []Record {
	seen := make(map[int64]bool, len(fresh)+len(prior))
	merged := make([]Record, 0, len(fresh)+len(prior))

	for _, list := range [][]Record{fresh, prior} {
		for _, r := range list {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}

	slices.SortStableFunc(merged, func(a, b Record) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return merged
}

// Marshal encodes doc in the given format.
func Marshal(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return json.MarshalIndent(doc, "", "  ")
	}
}

// Unmarshal decodes an artifact.
func Unmarshal(data []byte, format Format) (*Document, error) {
	doc := &Document{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, doc)
	default:
		err = json.Unmarshal(data, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s artifact: %w", ErrMalformedArtifact, format, err)
	}
	return doc, nil
}

// ReadArtifact loads an artifact from fsys, choosing the format by extension.
func ReadArtifact(fsys afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data, FormatFor(path))
}

// writeAtomic replaces path with data through a temp file in the same
// directory. The temp file is closed and removed on every failure path.
func writeAtomic(fsys afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			fsys.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace artifact: %w", err)
	}

	committed = true
	return nil
}
