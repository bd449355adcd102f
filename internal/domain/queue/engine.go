package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/infra/vlc"
)

// Player is the slice of the player remote client the engine needs.
type Player interface {
	GetShuffleState() (bool, error)
	ToggleShuffle() error
	PlayItem(id string) error
	GetPlaylist() ([]vlc.PlaylistItem, error)
}

// Engine owns the queue state and is the only sanctioned way to mutate it.
// It keeps the player's actual playback and shuffle mode consistent with
// queue intent. All operations are safe for concurrent use; mutations and
// their persistence are one atomic unit under the engine lock.
type Engine struct {
	mu     sync.Mutex
	player Player
	store  *Store
	state  State

	// lastObserved guards against a poll cycle reporting the same playlist
	// position twice; repeated observations are no-ops.
	lastObserved string

	// lastDequeued is the item most recently started via dequeueAndPlay. When
	// the poller later observes it playing, that observation corresponds to a
	// queue entry even though the entry was already removed at dequeue time.
	lastDequeued string
}

// NewEngine creates an engine, loading any persisted queue state.
func NewEngine(player Player, store *Store) *Engine {
	return &Engine{
		player: player,
		store:  store,
		state:  store.Load(),
	}
}

// Enqueue adds an item to the soft queue. If shuffle is on and the queue is
// empty, shuffle is suspended so natural playlist advancement does not fight
// the queue; the restore responsibility then follows the deepest entry of the
// queue. A duplicate itemID is rejected with ErrAlreadyQueued.
func (e *Engine) Enqueue(itemID, itemName string) (EnqueueResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.state.Entries[itemID]; exists {
		return EnqueueResult{}, fmt.Errorf("item %s: %w", itemID, ErrAlreadyQueued)
	}

	shuffleOn, err := e.player.GetShuffleState()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("read shuffle state: %w", err)
	}

	suspended := false
	if shuffleOn && len(e.state.Entries) == 0 {
		if err := e.player.ToggleShuffle(); err != nil {
			return EnqueueResult{}, fmt.Errorf("suspend shuffle: %w", err)
		}
		suspended = true
		log.Info().Str("item_id", itemID).Msg("Shuffle suspended for soft queue")
	}

	// The shuffle-restore flag always sits on the deepest entry: the first
	// enqueue under shuffle claims it, and every later enqueue re-evaluates
	// and migrates it to the new tail.
	restore := false
	if shuffleOn && len(e.state.Entries) == 0 {
		restore = true
	} else {
		for _, existing := range e.state.Entries {
			if existing.RestoreShuffle {
				restore = true
				break
			}
		}
	}

	entry := Entry{
		ItemID:         itemID,
		ItemName:       itemName,
		QueueOrder:     e.state.maxOrder() + 1,
		ShuffleWasOn:   shuffleOn,
		RestoreShuffle: restore,
		QueuedAt:       time.Now(),
	}
	e.state.Entries[itemID] = entry

	if restore {
		for id, existing := range e.state.Entries {
			if id != itemID && existing.RestoreShuffle {
				existing.RestoreShuffle = false
				e.state.Entries[id] = existing
			}
		}
	}

	if shuffleOn {
		e.state.ShuffleRestorePending = append(e.state.ShuffleRestorePending, itemID)
	}

	e.persist()

	log.Info().
		Str("item_id", itemID).
		Str("item_name", itemName).
		Int("queue_order", entry.QueueOrder).
		Bool("shuffle_was_on", shuffleOn).
		Msg("Item soft-queued")

	return EnqueueResult{
		ItemID:           itemID,
		ItemName:         itemName,
		QueueOrder:       entry.QueueOrder,
		TotalQueued:      len(e.state.Entries),
		ShuffleSuspended: suspended,
	}, nil
}

// PeekNext returns the entry with the lowest queue order without mutating
// state. ok is false if the queue is empty.
func (e *Engine) PeekNext() (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.headLocked()
}

// Len returns the number of live queue entries.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.state.Entries)
}

// DequeueAndPlay plays the next queued item and removes it from the queue.
// If the played entry is the last one and carries the shuffle-restore flag,
// shuffle is re-enabled as the item starts rather than when it finishes.
func (e *Engine) DequeueAndPlay() (PlayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dequeueAndPlayLocked()
}

func (e *Engine) dequeueAndPlayLocked() (PlayResult, error) {
	head, ok := e.headLocked()
	if !ok {
		return PlayResult{}, ErrQueueEmpty
	}

	name := e.resolveNameLocked(head)
	isLast := len(e.state.Entries) == 1

	if err := e.player.PlayItem(head.ItemID); err != nil {
		return PlayResult{}, fmt.Errorf("play item %s: %w", head.ItemID, err)
	}

	// Restore shuffle the moment the last queued item starts. Waiting for it
	// to finish would leave a window where the player falls through to
	// natural advancement with shuffle still off.
	if isLast && head.RestoreShuffle {
		if cur, err := e.player.GetShuffleState(); err != nil {
			log.Warn().Err(err).Msg("Could not read shuffle state for restore")
		} else if !cur {
			if err := e.player.ToggleShuffle(); err != nil {
				log.Warn().Err(err).Msg("Could not restore shuffle mode")
			} else {
				log.Info().Str("item_name", name).Msg("Shuffle restored as last queued item starts")
			}
		}
	}

	e.removeLocked(head.ItemID)
	e.lastDequeued = head.ItemID
	e.persist()

	log.Info().
		Str("item_id", head.ItemID).
		Str("item_name", name).
		Int("queue_order", head.QueueOrder).
		Msg("Playing next queued item")

	return PlayResult{ItemID: head.ItemID, ItemName: name, QueueOrder: head.QueueOrder}, nil
}

// RemoveByQueueOrder removes the entry with the given queue order.
func (e *Engine) RemoveByQueueOrder(order int) (RemoveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range e.state.Entries {
		if entry.QueueOrder == order {
			e.removeLocked(entry.ItemID)
			e.persist()
			log.Info().Int("queue_order", order).Str("item_id", entry.ItemID).Msg("Removed queued item by order")
			return RemoveResult{ItemID: entry.ItemID, ItemName: entry.ItemName, QueueOrder: entry.QueueOrder}, nil
		}
	}
	return RemoveResult{}, fmt.Errorf("order %d: %w", order, ErrOrderNotFound)
}

// RemoveByPlaylistPosition removes the queued entry whose item sits at the
// given 1-based position in the player's live playlist.
func (e *Engine) RemoveByPlaylistPosition(position int) (RemoveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	items, err := e.player.GetPlaylist()
	if err != nil {
		return RemoveResult{}, fmt.Errorf("read playlist: %w", err)
	}

	item, ok := vlc.FindByPosition(items, position)
	if !ok {
		return RemoveResult{}, fmt.Errorf("position %d: %w", position, ErrPositionNotFound)
	}

	entry, ok := e.state.Entries[item.ID]
	if !ok {
		return RemoveResult{}, fmt.Errorf("position %d: %w", position, ErrPositionNotQueued)
	}

	name := entry.ItemName
	if item.Name != "" {
		name = item.Name
	}

	e.removeLocked(entry.ItemID)
	e.persist()
	log.Info().Int("position", position).Str("item_id", entry.ItemID).Msg("Removed queued item by playlist position")
	return RemoveResult{ItemID: entry.ItemID, ItemName: name, QueueOrder: entry.QueueOrder}, nil
}

// ClearAll drops every entry and all bookkeeping. Idempotent.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = NewState()
	e.persist()
	log.Info().Msg("Cleared all queue tracking state")
}

// OnPlaylistPositionObserved is the transition hook invoked by the poller on
// every detected playlist position change. If the new current item is (or was
// just dequeued as) a queued entry, it is struck off; otherwise, a non-empty
// queue means the player advanced on its own and the engine corrects course
// by playing the next queued item.
func (e *Engine) OnPlaylistPositionObserved(currentItemID string) TransitionReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if currentItemID == e.lastObserved {
		return e.reportLocked(nil)
	}

	var transitions []Transition

	entry, isQueued := e.state.Entries[currentItemID]
	if isQueued || currentItemID == e.lastDequeued {
		e.lastObserved = currentItemID
		name := entry.ItemName
		if isQueued {
			e.removeLocked(currentItemID)
			e.persist()
		}
		log.Info().Str("item_id", currentItemID).Str("item_name", name).Msg("Soft-queued item now playing")
		transitions = append(transitions, Transition{
			Action:   TransitionQueuedItemStarted,
			ItemID:   currentItemID,
			ItemName: name,
		})
		return e.reportLocked(transitions)
	}

	if len(e.state.Entries) > 0 {
		res, err := e.dequeueAndPlayLocked()
		if err != nil {
			// Left unrecorded so the next poll cycle retries the correction.
			log.Warn().Err(err).Msg("Could not auto-play next queued item")
			return e.reportLocked(nil)
		}
		transitions = append(transitions, Transition{
			Action:   TransitionAutoPlayNext,
			ItemID:   res.ItemID,
			ItemName: res.ItemName,
		})
		log.Info().Str("item_name", res.ItemName).Msg("Automatically playing next queued item")
	}

	e.lastObserved = currentItemID
	return e.reportLocked(transitions)
}

// OnTrackFinished is invoked when a previously current item is no longer
// current. Pure bookkeeping: shuffle restoration already happened when the
// last queued item started.
func (e *Engine) OnTrackFinished(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, id := range e.state.ShuffleRestorePending {
		if id == itemID {
			e.state.ShuffleRestorePending = append(
				e.state.ShuffleRestorePending[:i], e.state.ShuffleRestorePending[i+1:]...)
			e.persist()
			log.Debug().Str("item_id", itemID).Msg("Removed finished item from shuffle restore bookkeeping")
			return
		}
	}
}

// GetQueueStatus returns a display snapshot of the queue. The shuffle state
// is read best-effort from the player.
func (e *Engine) GetQueueStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	shuffleOn, err := e.player.GetShuffleState()
	if err != nil {
		log.Debug().Err(err).Msg("Could not read shuffle state for queue status")
	}

	pending := make([]string, len(e.state.ShuffleRestorePending))
	copy(pending, e.state.ShuffleRestorePending)

	return Status{
		Entries:                e.state.Ordered(),
		ShuffleOn:              shuffleOn,
		PendingShuffleRestores: pending,
	}
}

// headLocked returns the entry with the lowest queue order.
func (e *Engine) headLocked() (Entry, bool) {
	var head Entry
	found := false
	for _, entry := range e.state.Entries {
		if !found || entry.QueueOrder < head.QueueOrder {
			head = entry
			found = true
		}
	}
	return head, found
}

// resolveNameLocked looks the entry up in the live playlist for its current
// display name, falling back to the name snapshot from enqueue time.
func (e *Engine) resolveNameLocked(entry Entry) string {
	items, err := e.player.GetPlaylist()
	if err != nil {
		log.Debug().Err(err).Msg("Could not resolve item name from playlist")
		return entry.ItemName
	}
	if item, ok := vlc.FindByID(items, entry.ItemID); ok && item.Name != "" {
		return item.Name
	}
	return entry.ItemName
}

// removeLocked removes an entry and re-establishes the queue invariants: the
// bookkeeping list cannot outlive an empty queue, and at most one remaining
// entry carries the restore flag, reassigned to the deepest entry that was
// queued while shuffle was on.
func (e *Engine) removeLocked(itemID string) {
	entry, ok := e.state.Entries[itemID]
	if !ok {
		return
	}
	delete(e.state.Entries, itemID)

	if len(e.state.Entries) == 0 {
		e.state.ShuffleRestorePending = nil
		return
	}

	if entry.RestoreShuffle {
		var heirID string
		heirOrder := 0
		for id, remaining := range e.state.Entries {
			if remaining.ShuffleWasOn && remaining.QueueOrder > heirOrder {
				heirID = id
				heirOrder = remaining.QueueOrder
			}
		}
		if heirID != "" {
			heir := e.state.Entries[heirID]
			heir.RestoreShuffle = true
			e.state.Entries[heirID] = heir
		}
	}
}

// reportLocked builds a transition report for the current state.
func (e *Engine) reportLocked(transitions []Transition) TransitionReport {
	return TransitionReport{
		Transitions:            transitions,
		QueueDepth:             len(e.state.Entries),
		PendingShuffleRestores: len(e.state.ShuffleRestorePending),
	}
}

// persist saves state; on disk failure the in-memory state stays
// authoritative for the rest of the process lifetime.
func (e *Engine) persist() {
	if err := e.store.Save(e.state); err != nil {
		log.Error().Err(err).Msg("Failed to save queue backup")
	}
}
