package store

import (
	"fmt"
	"time"
)

// ContentType is the closed set of clipboard item kinds.
type ContentType string

const (
	TypeText  ContentType = "text"
	TypeFile  ContentType = "file"
	TypeImage ContentType = "image"
)

// ParseContentType validates s as a ContentType.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(s)
	if !ct.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return ct, nil
}

// Valid reports whether c is one of the known kinds.
func (c ContentType) Valid() bool {
	switch c {
	case TypeText, TypeFile, TypeImage:
		return true
	default:
		return false
	}
}

// Entry is one logical clipboard history record.
type Entry struct {
	ID          int64
	Content     string
	ContentHash string
	ContentType ContentType
	FilePath    string
	FileSize    int64
	MimeType    string
	Thumbnail   []byte
	Timestamp   time.Time
	IsFavorite  bool
	AccessCount int64
	BackedUp    bool
}

// Normalize clears the fields that carry no meaning for the entry's kind so a
// row never keeps values left over from another kind.
func (e *Entry) Normalize() {
	switch e.ContentType {
	case TypeText:
		e.FilePath = ""
		e.FileSize = 0
		if e.MimeType == "" {
			e.MimeType = "text/plain"
		}
	case TypeImage:
		e.FilePath = ""
	case TypeFile:
	}
}

// Filter selects history entries. The zero value matches everything.
type Filter struct {
	// Search is a case-insensitive substring matched against content and
	// file path.
	Search        string
	ContentType   ContentType
	FavoritesOnly bool
	// Limit caps the number of results; 0 means unlimited.
	Limit int

	unbackedOnly bool
}

// Status summarises the history database
type Status struct {
	Total         int64
	ByType        map[ContentType]int64
	Favorites     int64
	Unbacked      int64
	Newest        *time.Time
	SchemaVersion int64
}

// entryRow is the persisted shape of an Entry.
type entryRow struct {
	ID          int64  `db:"id"`
	Content     string `db:"content"`
	ContentHash string `db:"content_hash"`
	ContentType string `db:"content_type"`
	FilePath    string `db:"file_path"`
	FileSize    int64  `db:"file_size"`
	MimeType    string `db:"mime_type"`
	Thumbnail   []byte `db:"thumbnail"`
	Timestamp   int64  `db:"timestamp"`
	IsFavorite  bool   `db:"is_favorite"`
	AccessCount int64  `db:"access_count"`
	BackedUp    bool   `db:"backed_up"`
}

func (r *entryRow) entry() *Entry {
	return &Entry{
		ID:          r.ID,
		Content:     r.Content,
		ContentHash: r.ContentHash,
		ContentType: ContentType(r.ContentType),
		FilePath:    r.FilePath,
		FileSize:    r.FileSize,
		MimeType:    r.MimeType,
		Thumbnail:   r.Thumbnail,
		Timestamp:   time.Unix(0, r.Timestamp).UTC(),
		IsFavorite:  r.IsFavorite,
		AccessCount: r.AccessCount,
		BackedUp:    r.BackedUp,
	}
}

const entryColumns = `id, content, content_hash, content_type, file_path, file_size,
	mime_type, thumbnail, timestamp, is_favorite, access_count, backed_up`
