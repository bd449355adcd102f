// Package schedule plays playlist items at wall-clock times. Jobs survive
// restarts through a JSON backup file.
package schedule

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/media"
	"github.com/cinecue/cinecue/internal/infra/vlc"
)

const (
	// DefaultCheckInterval is how often due jobs are looked for.
	DefaultCheckInterval = 30 * time.Second

	// duplicateWindow rejects a second schedule of the same item this close
	// to an existing one.
	duplicateWindow = time.Minute
)

var (
	// ErrPastTime indicates the requested time is not in the future.
	ErrPastTime = errors.New("scheduled time must be in the future")

	// ErrAlreadyScheduled indicates the item already has a schedule at
	// nearly the same time.
	ErrAlreadyScheduled = errors.New("item is already scheduled at that time")

	// ErrNotScheduled indicates no schedule exists for the item.
	ErrNotScheduled = errors.New("no schedules for that item")

	// ErrItemNotFound indicates the playlist position does not exist.
	ErrItemNotFound = errors.New("playlist position not found")
)

// Job is one pending scheduled playback.
type Job struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"` // 1-based playlist position
	Title     string    `json:"title"`
	At        time.Time `json:"at"`
	ChannelID string    `json:"channel_id"`
	Duration  int       `json:"duration"` // seconds, 0 when unknown
}

// Player is the playback surface the scheduler drives.
type Player interface {
	GetPlaylist() ([]vlc.PlaylistItem, error)
	PlayItem(id string) error
}

// Notifier is told when a scheduled job fires. May be nil.
type Notifier interface {
	NotifyScheduledStart(job Job)
}

// Service owns the pending jobs and the check loop.
type Service struct {
	mu       sync.Mutex
	player   Player
	store    *Store
	notifier Notifier
	clock    clockwork.Clock
	interval time.Duration
	jobs     []Job
}

// Option configures the service.
type Option func(*Service)

// WithClock sets the clock (useful for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithInterval sets the check cadence.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.interval = interval
	}
}

// WithNotifier sets the announcement hook.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// SetNotifier installs the announcement hook after construction. The front
// end that receives announcements is usually built after the scheduler it
// commands.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// New creates a scheduler, restoring pending jobs from the store.
func New(player Player, store *Store, opts ...Option) *Service {
	s := &Service{
		player:   player,
		store:    store,
		clock:    clockwork.NewRealClock(),
		interval: DefaultCheckInterval,
		jobs:     store.Load(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.jobs) > 0 {
		log.Info().Int("jobs", len(s.jobs)).Msg("Restored scheduled playbacks")
	}
	return s
}

// Schedule registers a playback of the playlist item at the given position.
// The title and duration are resolved from the live playlist so listings stay
// meaningful even if the playlist later changes.
func (s *Service) Schedule(number int, at time.Time, channelID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !at.After(s.clock.Now()) {
		return Job{}, ErrPastTime
	}

	for _, job := range s.jobs {
		if job.Number != number {
			continue
		}
		gap := job.At.Sub(at)
		if gap < 0 {
			gap = -gap
		}
		if gap < duplicateWindow {
			return Job{}, ErrAlreadyScheduled
		}
	}

	job := Job{
		ID:        uuid.NewString(),
		Number:    number,
		Title:     "Unknown",
		At:        at,
		ChannelID: channelID,
	}

	if items, err := s.player.GetPlaylist(); err == nil {
		if item, ok := vlc.FindByPosition(items, number); ok {
			job.Title = media.CleanMovieTitle(item.Name)
			job.Duration = item.Duration
		}
	}

	s.jobs = append(s.jobs, job)
	s.persist()

	log.Info().Int("number", number).Str("title", job.Title).Time("at", at).Msg("Playback scheduled")
	return job, nil
}

// Unschedule removes every schedule for a playlist position and returns how
// many were removed.
func (s *Service) Unschedule(number int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.jobs[:0]
	removed := 0
	for _, job := range s.jobs {
		if job.Number == number {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = kept

	if removed == 0 {
		return 0, ErrNotScheduled
	}
	s.persist()
	log.Info().Int("number", number).Int("removed", removed).Msg("Schedules removed")
	return removed, nil
}

// List returns pending jobs ordered by fire time.
func (s *Service) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].At.Before(jobs[j].At) })
	return jobs
}

// Run checks for due jobs until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Schedule checking started")

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Schedule checking stopped")
			return
		case <-ticker.Chan():
			s.CheckDue()
		}
	}
}

// CheckDue fires every job whose time has passed. Jobs are consumed whether
// or not playback succeeded, matching the one-shot nature of a showtime.
func (s *Service) CheckDue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []Job
	kept := s.jobs[:0]
	for _, job := range s.jobs {
		if !job.At.After(now) {
			due = append(due, job)
			continue
		}
		kept = append(kept, job)
	}
	if len(due) == 0 {
		s.jobs = kept
		return
	}
	s.jobs = kept
	s.persist()

	for _, job := range due {
		s.fire(job)
	}
}

func (s *Service) fire(job Job) {
	items, err := s.player.GetPlaylist()
	if err != nil {
		log.Error().Err(err).Int("number", job.Number).Msg("Could not read playlist for scheduled playback")
		return
	}
	item, ok := vlc.FindByPosition(items, job.Number)
	if !ok {
		log.Warn().Int("number", job.Number).Msg("Scheduled playlist position no longer exists")
		return
	}
	if err := s.player.PlayItem(item.ID); err != nil {
		log.Error().Err(err).Str("item", item.Name).Msg("Could not start scheduled playback")
		return
	}

	log.Info().Int("number", job.Number).Str("title", job.Title).Msg("Scheduled playback started")
	if s.notifier != nil {
		s.notifier.NotifyScheduledStart(job)
	}
}

func (s *Service) persist() {
	if err := s.store.Save(s.jobs); err != nil {
		log.Error().Err(err).Msg("Could not save schedule backup")
	}
}
