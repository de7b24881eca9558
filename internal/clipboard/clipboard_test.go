package clipboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Snapshot
		want bool
	}{
		{"empty", Snapshot{}, Snapshot{}, true},
		{"same text", Snapshot{Text: "a"}, Snapshot{Text: "a"}, true},
		{"different text", Snapshot{Text: "a"}, Snapshot{Text: "b"}, false},
		{"same image", Snapshot{ImageBytes: []byte{1, 2}}, Snapshot{ImageBytes: []byte{1, 2}}, true},
		{"image length differs", Snapshot{ImageBytes: []byte{1}}, Snapshot{ImageBytes: []byte{1, 2}}, false},
		{"image bytes differ", Snapshot{ImageBytes: []byte{1, 3}}, Snapshot{ImageBytes: []byte{1, 2}}, false},
		{"uris differ", Snapshot{FileURIs: []string{"file:///a"}}, Snapshot{FileURIs: []string{"file:///b"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestSnapshot_Empty(t *testing.T) {
	assert.True(t, Snapshot{}.Empty())
	assert.False(t, Snapshot{Text: " "}.Empty())
	assert.False(t, Snapshot{ImageBytes: []byte{0}}.Empty())
}

func TestParseURIList(t *testing.T) {
	assert.Equal(t, []string{"file:///tmp/a.txt", "file:///tmp/b.txt"},
		ParseURIList("# copied\nfile:///tmp/a.txt\r\nfile:///tmp/b.txt\n"))
	assert.Nil(t, ParseURIList("see file:///tmp/a.txt"))
	assert.Nil(t, ParseURIList("file:///tmp/a.txt\nhello"))
	assert.Nil(t, ParseURIList(""))
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/tmp/my file.txt", LocalPath("file:///tmp/my%20file.txt"))
	assert.Equal(t, "/tmp/a.txt", LocalPath("/tmp/a.txt"))
	assert.Equal(t, "/tmp/a.txt", LocalPath(FileURI("/tmp/a.txt")))
}

func TestSystem_HungReadIsNotRestarted(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := &System{read: func() Snapshot {
		calls.Add(1)
		<-release
		return Snapshot{Text: "clip"}
	}}

	for range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := s.ReadSnapshot(ctx)
		cancel()
		assert.True(t, errors.Is(err, ErrTransient))
	}
	assert.Equal(t, int32(1), calls.Load(), "timed out reads share the one in flight")

	close(release)
	snap, err := s.ReadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "clip", snap.Text)
}

func TestMemory_FailNextReads(t *testing.T) {
	m := NewMemory()
	m.SetText("hello")
	m.FailNextReads(1)

	_, err := m.ReadSnapshot(context.Background())
	assert.True(t, errors.Is(err, ErrTransient))

	snap, err := m.ReadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", snap.Text)
	assert.Equal(t, 2, m.Reads())
}

func TestMemory_WriteSnapshot(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.WriteSnapshot(context.Background(), Snapshot{Text: "x"}))
	assert.Equal(t, "x", m.Current().Text)
	assert.Equal(t, 1, m.Writes())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, m.WriteSnapshot(ctx, Snapshot{Text: "y"}))
}
