// Package monitor polls the player at a fixed cadence, diffs observations
// against the last known state and drives the soft queue engine's transition
// hooks. The player offers no push notifications, so polling is the only
// change-detection mechanism available.
package monitor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/infra/vlc"
)

const (
	// DefaultInterval is the poll cadence.
	DefaultInterval = time.Second

	// actionCooldown is the minimum gap between automatic queue-triggered
	// actions, so status polls racing command side effects cannot thrash.
	actionCooldown = 2 * time.Second

	// nearEndSeconds treats a paused item this close to its end as finished;
	// files may pause at end-of-stream rather than stop.
	nearEndSeconds = 3
)

// Player is the slice of the player remote client the poller reads.
type Player interface {
	GetStatus() (*vlc.Status, error)
	GetPlaylist() ([]vlc.PlaylistItem, error)
}

// Engine is the queue engine surface the poller drives.
type Engine interface {
	OnPlaylistPositionObserved(currentItemID string) queue.TransitionReport
	OnTrackFinished(itemID string)
	DequeueAndPlay() (queue.PlayResult, error)
	PeekNext() (queue.Entry, bool)
	Len() int
}

// Notifier receives observed changes for user-facing announcements. All
// methods are called from the poll goroutine.
type Notifier interface {
	NotifyStateChanged(prev, curr Snapshot)
	NotifyTrackChanged(curr Snapshot)
	NotifyTransitions(transitions []queue.Transition)
}

// Poller owns no state machine of its own beyond the last observed snapshot;
// it only reacts to what the player reports.
type Poller struct {
	player   Player
	engine   Engine
	notifier Notifier
	clock    clockwork.Clock
	interval time.Duration

	prev       Snapshot
	havePrev   bool
	lastAction time.Time
}

// Option configures the poller.
type Option func(*Poller)

// WithClock sets the clock (useful for testing).
func WithClock(clock clockwork.Clock) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

// WithInterval sets the poll cadence.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		p.interval = interval
	}
}

// New creates a poller. notifier may be nil.
func New(player Player, engine Engine, notifier Notifier, opts ...Option) *Poller {
	p := &Poller{
		player:   player,
		engine:   engine,
		notifier: notifier,
		clock:    clockwork.NewRealClock(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled. One bad cycle never kills the
// loop: errors are logged and the next tick proceeds.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Playback state monitoring started")

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Playback state monitoring stopped")
			return
		case <-ticker.Chan():
			p.safePoll()
		}
	}
}

func (p *Poller) safePoll() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from poll cycle panic")
		}
	}()
	p.Poll()
}

// Poll performs one observation cycle.
func (p *Poller) Poll() {
	snap, err := p.snapshot()
	if err != nil {
		// Routine while the player is down; the next cycle retries.
		log.Debug().Err(err).Msg("Could not observe player state")
		return
	}

	if !p.havePrev {
		p.prev = snap
		p.havePrev = true
		return
	}

	d := diffSnapshots(p.prev, snap)

	if d.PositionChanged {
		if p.prev.ItemID != "" {
			p.engine.OnTrackFinished(p.prev.ItemID)
		}
		if snap.ItemID != "" {
			report := p.engine.OnPlaylistPositionObserved(snap.ItemID)
			if len(report.Transitions) > 0 {
				p.lastAction = p.clock.Now()
				p.notifyTransitions(report.Transitions)
			}
		}
	}

	switch {
	case d.StateChanged:
		log.Info().Str("from", p.prev.State).Str("to", snap.State).Msg("Playback state changed")
		if p.notifier != nil {
			p.notifier.NotifyStateChanged(p.prev, snap)
		}
	case d.PositionChanged:
		log.Info().Str("item", snap.ItemName).Int("position", snap.Position).Msg("Track changed")
		if p.notifier != nil {
			p.notifier.NotifyTrackChanged(snap)
		}
	}

	p.maybeAdvance(d, snap)

	p.prev = snap
}

// maybeAdvance proactively plays the next queued item when the current one
// has ended, or re-issues the correction when the wrong item is playing.
func (p *Poller) maybeAdvance(d Diff, snap Snapshot) {
	if p.engine.Len() == 0 || !p.cooldownElapsed() {
		return
	}

	ended := (d.StateChanged && snap.State == "stopped" && p.prev.State == "playing") ||
		(snap.State == "paused" && nearEnd(snap))

	wrongItem := false
	if d.StateChanged && snap.State == "playing" && snap.ItemID != "" {
		if head, ok := p.engine.PeekNext(); ok && head.ItemID != snap.ItemID {
			wrongItem = true
		}
	}

	if !ended && !wrongItem {
		return
	}

	res, err := p.engine.DequeueAndPlay()
	if err != nil {
		log.Warn().Err(err).Msg("Could not advance to next queued item")
		return
	}
	p.lastAction = p.clock.Now()
	log.Info().Str("item_name", res.ItemName).Bool("ended", ended).Msg("Advanced to next queued item")
	p.notifyTransitions([]queue.Transition{{
		Action:   queue.TransitionAutoPlayNext,
		ItemID:   res.ItemID,
		ItemName: res.ItemName,
	}})
}

func (p *Poller) cooldownElapsed() bool {
	return p.lastAction.IsZero() || p.clock.Since(p.lastAction) >= actionCooldown
}

func (p *Poller) notifyTransitions(transitions []queue.Transition) {
	if p.notifier != nil {
		p.notifier.NotifyTransitions(transitions)
	}
}

// snapshot reads status and playlist and folds them into one observation.
func (p *Poller) snapshot() (Snapshot, error) {
	status, err := p.player.GetStatus()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		State:    status.State,
		TimeLeft: status.TimeLeft(),
	}

	items, err := p.player.GetPlaylist()
	if err != nil {
		return Snapshot{}, err
	}
	if item, pos, ok := vlc.CurrentItem(items); ok {
		snap.ItemID = item.ID
		snap.ItemName = item.Name
		snap.Position = pos
	}
	return snap, nil
}
