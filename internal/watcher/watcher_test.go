package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestCoalesce(t *testing.T) {
	events := []ChangeEvent{
		{Type: EventTypeCreated, Path: "pages/b.volki"},
		{Type: EventTypeCreated, Path: "pages/a.volki"},
		{Type: EventTypeModified, Path: "pages/b.volki"},
		{Type: EventTypeDeleted, Path: "pages/a.volki"},
	}

	got := Coalesce(events)
	require.Len(t, got, 2)
	assert.Equal(t, "pages/a.volki", got[0].Path)
	assert.Equal(t, EventTypeDeleted, got[0].Type)
	assert.Equal(t, "pages/b.volki", got[1].Path)
	assert.Equal(t, EventTypeModified, got[1].Type)
}

func TestFilters(t *testing.T) {
	ext := ExtensionFilter("volki")

	tests := []struct {
		path   string
		ext    bool
		hidden bool
	}{
		{"pages/index.volki", true, true},
		{"pages/users", true, true},
		{"pages/readme.md", false, true},
		{"pages/.index.volki.swp", false, false},
		{"pages/.hidden.volki", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ext, ext(tt.path))
			assert.Equal(t, tt.hidden, NoHiddenFilter(tt.path))
		})
	}
}

func TestDebouncerBatches(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	for i := 0; i < 5; i++ {
		d.events <- ChangeEvent{Type: EventTypeModified, Path: "pages/index.volki"}
	}
	d.events <- ChangeEvent{Type: EventTypeCreated, Path: "api/health.volki"}

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "api/health.volki", batch[0].Path)
		assert.Equal(t, "pages/index.volki", batch[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
	}

	select {
	case batch := <-d.output:
		t.Fatalf("unexpected second batch %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) handle(events []ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestFileWatcherDeliversRouteChanges(t *testing.T) {
	root := t.TempDir()
	pages := filepath.Join(root, "pages")
	require.NoError(t, os.MkdirAll(pages, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	w, err := New(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Stop()

	rec := &recorder{}
	w.AddFilter(ExtensionFilter(".volki"))
	w.AddFilter(NoHiddenFilter)
	w.AddHandler(rec.handle)
	require.NoError(t, w.AddRecursive(root))

	assert.NotContains(t, w.WatchList(), filepath.Join(root, ".git"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	index := filepath.Join(pages, "index.volki")
	notes := filepath.Join(pages, "notes.txt")
	require.NoError(t, os.WriteFile(index, []byte("<h1>home</h1>"), 0o644))
	require.NoError(t, os.WriteFile(notes, []byte("ignored"), 0o644))

	require.Eventually(t, func() bool { return rec.seen(index) }, 3*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen(notes))

	// Files in directories created after start are seen too.
	users := filepath.Join(pages, "users")
	require.NoError(t, os.MkdirAll(users, 0o755))
	require.Eventually(t, func() bool {
		for _, p := range w.WatchList() {
			if p == users {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	user := filepath.Join(users, "[id].volki")
	require.NoError(t, os.WriteFile(user, []byte("user"), 0o644))
	require.Eventually(t, func() bool { return rec.seen(user) }, 3*time.Second, 10*time.Millisecond)
}

func TestAddRecursiveMissingRoot(t *testing.T) {
	w, err := New(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.AddRecursive(filepath.Join(t.TempDir(), "missing")))
}
