package watch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

type fakePlayer struct {
	enqueued []string
	err      error
}

func (f *fakePlayer) EnqueuePath(path string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, path)
	return nil
}

type fakeNotifier struct {
	batches [][]string
}

func (f *fakeNotifier) NotifyFilesAdded(paths []string) {
	f.batches = append(f.batches, paths)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	return path
}

func TestNewNormalizesFolders(t *testing.T) {
	dir := t.TempDir()
	s := New(&fakePlayer{}, []string{dir, dir + string(os.PathSeparator), ""})
	if len(s.folders) != 1 {
		t.Errorf("Expected 1 unique folder, got %v", s.folders)
	}
	if !s.Enabled() {
		t.Error("Service with folders should be enabled")
	}
	if New(&fakePlayer{}, nil).Enabled() {
		t.Error("Service without folders should be disabled")
	}
}

func TestIsIngestable(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/media/The.Thing.mkv", true},
		{"/media/song.flac", true},
		{"/media/.hidden.mkv", false},
		{"/media/notes.txt", false},
		{"/media/cover.jpg", false},
	}
	for _, tt := range tests {
		if got := isIngestable(tt.path); got != tt.want {
			t.Errorf("isIngestable(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFlushStableEnqueuesQuietFiles(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	player := &fakePlayer{}
	notifier := &fakeNotifier{}
	s := New(player, []string{dir}, WithClock(clock), WithNotifier(notifier))

	path := writeFile(t, dir, "The.Thing.mkv", "data")
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})

	// Quiet period not over yet.
	s.flushStable()
	if len(player.enqueued) != 0 {
		t.Fatal("File enqueued before the stability window elapsed")
	}

	clock.Advance(DefaultStableAge + time.Second)
	s.flushStable()

	if len(player.enqueued) != 1 || player.enqueued[0] != path {
		t.Errorf("enqueued = %v, want [%s]", player.enqueued, path)
	}
	if len(notifier.batches) != 1 {
		t.Errorf("Expected 1 notification batch, got %d", len(notifier.batches))
	}

	// A second flush must not enqueue the same file again.
	clock.Advance(DefaultStableAge + time.Second)
	s.flushStable()
	if len(player.enqueued) != 1 {
		t.Errorf("File enqueued twice: %v", player.enqueued)
	}
}

func TestFlushStableRestartsWindowWhileGrowing(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	player := &fakePlayer{}
	s := New(player, []string{dir}, WithClock(clock))

	path := writeFile(t, dir, "copying.mkv", "part")
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})

	// The file grows during the quiet period.
	if err := os.WriteFile(path, []byte("part and then some"), 0644); err != nil {
		t.Fatal(err)
	}
	clock.Advance(DefaultStableAge + time.Second)
	s.flushStable()
	if len(player.enqueued) != 0 {
		t.Fatal("Growing file must not be enqueued")
	}

	// Size holds through the next window.
	clock.Advance(DefaultStableAge + time.Second)
	s.flushStable()
	if len(player.enqueued) != 1 {
		t.Errorf("Stable file should be enqueued, got %v", player.enqueued)
	}
}

func TestFlushStableDropsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	player := &fakePlayer{}
	s := New(player, []string{dir}, WithClock(clock))

	path := writeFile(t, dir, "gone.mkv", "data")
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})
	os.Remove(path)

	clock.Advance(DefaultStableAge + time.Second)
	s.flushStable()

	if len(player.enqueued) != 0 {
		t.Errorf("Removed file must not be enqueued, got %v", player.enqueued)
	}
	if len(s.pending) != 0 {
		t.Errorf("Pending entry should be dropped, got %v", s.pending)
	}
}

func TestHandleEventIgnoresNonMedia(t *testing.T) {
	dir := t.TempDir()
	s := New(&fakePlayer{}, []string{dir}, WithClock(clockwork.NewFakeClock()))

	path := writeFile(t, dir, "notes.txt", "text")
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})

	if len(s.pending) != 0 {
		t.Errorf("Non-media file tracked: %v", s.pending)
	}
}

func TestHandleEventRemoveClearsPending(t *testing.T) {
	dir := t.TempDir()
	s := New(&fakePlayer{}, []string{dir}, WithClock(clockwork.NewFakeClock()))

	path := writeFile(t, dir, "The.Thing.mkv", "data")
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Create})
	if len(s.pending) != 1 {
		t.Fatal("Expected the file to be tracked")
	}

	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Remove})
	if len(s.pending) != 0 {
		t.Errorf("Remove event should clear tracking, got %v", s.pending)
	}
}

func TestInitialScanMarksExistingFilesSeen(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{}
	s := New(player, []string{dir}, WithClock(clockwork.NewFakeClock()))

	path := writeFile(t, dir, "existing.mkv", "data")
	writeFile(t, dir, "ignored.txt", "text")

	s.initialScan()

	if len(player.enqueued) != 0 {
		t.Errorf("Initial scan must not enqueue by default, got %v", player.enqueued)
	}
	if _, ok := s.seen[path]; !ok {
		t.Error("Existing media file should be marked seen")
	}

	// Seen files are not tracked again when events arrive later.
	s.handleEvent(nil, fsnotify.Event{Name: path, Op: fsnotify.Write})
	if len(s.pending) != 0 {
		t.Errorf("Seen file tracked again: %v", s.pending)
	}
}

func TestInitialScanEnqueueOnStart(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{}
	notifier := &fakeNotifier{}
	s := New(player, []string{dir},
		WithClock(clockwork.NewFakeClock()),
		WithNotifier(notifier),
		WithEnqueueOnStart(true))

	writeFile(t, dir, "a.mkv", "data")
	writeFile(t, dir, "b.mkv", "data")

	s.initialScan()

	if len(player.enqueued) != 2 {
		t.Errorf("Expected both files enqueued, got %v", player.enqueued)
	}
	if len(notifier.batches) != 1 || len(notifier.batches[0]) != 2 {
		t.Errorf("Expected one grouped notification, got %v", notifier.batches)
	}
}

func TestEnqueueBatchSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{err: errors.New("player down")}
	notifier := &fakeNotifier{}
	s := New(player, []string{dir}, WithNotifier(notifier))

	s.enqueueBatch([]string{filepath.Join(dir, "a.mkv")})

	if len(notifier.batches) != 0 {
		t.Errorf("Failed enqueues must not be announced, got %v", notifier.batches)
	}
}
