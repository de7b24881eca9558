package main

import (
	"strings"
	"testing"

	"github.com/vonshlovens/clipkeep/internal/store"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		arg     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseID(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseID(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseID(%q) = %d, want %d", tt.arg, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name  string
		entry *store.Entry
		want  string
	}{
		{"text collapses whitespace", &store.Entry{ContentType: store.TypeText, Content: "a\n\tb  c"}, "a b c"},
		{"url is flagged", &store.Entry{ContentType: store.TypeText, Content: "https://go.dev"}, "[url] https://go.dev"},
		{"file shows path", &store.Entry{ContentType: store.TypeFile, FilePath: "/tmp/a.txt"}, "/tmp/a.txt"},
		{"image shows mime", &store.Entry{ContentType: store.TypeImage, MimeType: "image/png"}, "[image image/png]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preview(tt.entry); got != tt.want {
				t.Errorf("preview() = %q, want %q", got, tt.want)
			}
		})
	}

	long := preview(&store.Entry{ContentType: store.TypeText, Content: strings.Repeat("x", 200)})
	if n := len([]rune(long)); n != previewWidth {
		t.Errorf("long preview has %d runes, want %d", n, previewWidth)
	}
}
