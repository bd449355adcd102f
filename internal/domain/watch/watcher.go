// Package watch ingests media files dropped into watched folders. New files
// are held until their size stops changing, then enqueued on the player, so
// half-copied files never reach the playlist.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/media"
)

const (
	// DefaultStableAge is how long a file must stay unchanged before it is
	// considered fully written.
	DefaultStableAge = 2 * time.Second

	// flushInterval is the cadence of the stability check.
	flushInterval = time.Second
)

// Player is the enqueue surface of the player remote client.
type Player interface {
	EnqueuePath(path string) error
}

// Notifier is told about files that made it onto the playlist. May be nil.
type Notifier interface {
	NotifyFilesAdded(paths []string)
}

type pendingFile struct {
	size      int64
	lastEvent time.Time
}

// Service watches folders and enqueues new media files.
type Service struct {
	player    Player
	notifier  Notifier
	folders   []string
	clock     clockwork.Clock
	stableAge time.Duration

	// enqueueOnStart also enqueues files already present at startup.
	enqueueOnStart bool

	pending map[string]pendingFile
	seen    map[string]struct{}
}

// Option configures the service.
type Option func(*Service)

// WithClock sets the clock (useful for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithStableAge sets the quiet period before a file counts as complete.
func WithStableAge(age time.Duration) Option {
	return func(s *Service) {
		s.stableAge = age
	}
}

// WithNotifier sets the announcement hook.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithEnqueueOnStart enqueues files found during the initial scan instead of
// only remembering them.
func WithEnqueueOnStart(enabled bool) Option {
	return func(s *Service) {
		s.enqueueOnStart = enabled
	}
}

// New creates a watch service over the given folders. Folders are
// deduplicated after path normalization.
func New(player Player, folders []string, opts ...Option) *Service {
	s := &Service{
		player:    player,
		clock:     clockwork.NewRealClock(),
		stableAge: DefaultStableAge,
		pending:   make(map[string]pendingFile),
		seen:      make(map[string]struct{}),
	}

	unique := make(map[string]struct{})
	for _, folder := range folders {
		if folder == "" {
			continue
		}
		abs, err := filepath.Abs(folder)
		if err != nil {
			abs = filepath.Clean(folder)
		}
		if _, ok := unique[abs]; ok {
			continue
		}
		unique[abs] = struct{}{}
		s.folders = append(s.folders, abs)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether any folders are configured.
func (s *Service) Enabled() bool {
	return len(s.folders) > 0
}

// Run watches until the context is cancelled. Returns an error only when the
// watcher itself cannot be created; per-file failures are logged and skipped.
func (s *Service) Run(ctx context.Context) error {
	if !s.Enabled() {
		log.Info().Msg("Watch folders disabled (none configured)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, folder := range s.folders {
		if err := addRecursive(watcher, folder); err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("Could not watch folder")
			continue
		}
		log.Info().Str("folder", folder).Msg("Watching folder")
	}

	s.initialScan()

	ticker := s.clock.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Folder watching stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		case <-ticker.Chan():
			s.flushStable()
		}
	}
}

// initialScan walks the folders once so pre-existing files are known.
func (s *Service) initialScan() {
	var found []string
	for _, folder := range s.folders {
		err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != folder {
					return filepath.SkipDir
				}
				return nil
			}
			if isIngestable(path) {
				s.seen[path] = struct{}{}
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("Initial scan failed")
		}
	}

	log.Info().Int("files", len(found)).Bool("enqueue", s.enqueueOnStart).Msg("Initial folder scan complete")

	if s.enqueueOnStart && len(found) > 0 {
		s.enqueueBatch(found)
	}
}

// handleEvent records file activity and extends the watch to new
// directories.
func (s *Service) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			delete(s.pending, event.Name)
		}
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		delete(s.pending, event.Name)
		return
	}

	if info.IsDir() {
		if event.Op.Has(fsnotify.Create) && !strings.HasPrefix(filepath.Base(event.Name), ".") {
			if err := addRecursive(watcher, event.Name); err != nil {
				log.Warn().Err(err).Str("dir", event.Name).Msg("Could not watch new directory")
			}
		}
		return
	}

	if !isIngestable(event.Name) {
		return
	}
	if _, ok := s.seen[event.Name]; ok {
		return
	}

	s.track(event.Name, info.Size())
}

// track starts or refreshes the stability window for a file.
func (s *Service) track(path string, size int64) {
	s.pending[path] = pendingFile{size: size, lastEvent: s.clock.Now()}
}

// flushStable enqueues pending files that kept their size through the quiet
// period.
func (s *Service) flushStable() {
	var ready []string
	for path, p := range s.pending {
		if s.clock.Since(p.lastEvent) < s.stableAge {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(s.pending, path)
			continue
		}
		if info.Size() != p.size {
			// Still being written, restart the window.
			s.track(path, info.Size())
			continue
		}
		ready = append(ready, path)
	}

	if len(ready) == 0 {
		return
	}
	for _, path := range ready {
		delete(s.pending, path)
	}
	s.enqueueBatch(ready)
}

// enqueueBatch enqueues each path and announces the ones that succeeded.
func (s *Service) enqueueBatch(paths []string) {
	var enqueued []string
	for _, path := range paths {
		if err := s.player.EnqueuePath(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not enqueue new file")
			continue
		}
		s.seen[path] = struct{}{}
		log.Info().Str("path", path).Msg("Enqueued new media file")
		enqueued = append(enqueued, path)
	}

	if len(enqueued) > 0 && s.notifier != nil {
		s.notifier.NotifyFilesAdded(enqueued)
	}
}

// isIngestable accepts visible media files only.
func isIngestable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return media.IsVideoFile(name) || media.MediaIcon(name) == "🎵"
}

// addRecursive watches a directory tree, skipping hidden directories.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
