// Package queue implements the soft playback queue and its shuffle-state
// reconciliation. Queued items are tracked independently of the player's real
// playlist order: nothing is physically reordered, the engine just remembers
// what should play next and steers the player when items finish.
package queue

import (
	"errors"
	"sort"
	"time"
)

// Logical queue errors. Player-communication failures are returned wrapped
// and are distinct from these.
var (
	// ErrQueueEmpty is returned when dequeueing from an empty queue.
	ErrQueueEmpty = errors.New("no items queued")

	// ErrAlreadyQueued is returned when the item is already in the queue.
	ErrAlreadyQueued = errors.New("item is already queued")

	// ErrOrderNotFound is returned when no entry has the given queue order.
	ErrOrderNotFound = errors.New("no entry at that order")

	// ErrPositionNotFound is returned when the playlist has no item at the
	// given position.
	ErrPositionNotFound = errors.New("no playlist item at that position")

	// ErrPositionNotQueued is returned when the playlist item at the given
	// position is not in the queue.
	ErrPositionNotQueued = errors.New("position not currently queued")
)

// Entry is one pending "play next" request.
type Entry struct {
	// ItemID is the player's native playlist item id. Positions shift as the
	// playlist changes; ids do not.
	ItemID string

	// ItemName is the display name captured at enqueue time, used as a
	// fallback if the item later disappears from the playlist.
	ItemName string

	// QueueOrder is a monotonically increasing integer assigned at enqueue
	// time. It defines FIFO ordering and is never reused.
	QueueOrder int

	// ShuffleWasOn records the player's shuffle state at enqueue time.
	ShuffleWasOn bool

	// RestoreShuffle marks the single entry that, upon starting playback as
	// the last queued item, re-enables the player's shuffle mode.
	RestoreShuffle bool

	// QueuedAt is the enqueue wall-clock time, informational only.
	QueuedAt time.Time
}

// State is the aggregate queue state.
type State struct {
	// Entries maps itemID to the pending entry. Ordering is derived from
	// QueueOrder, not map iteration.
	Entries map[string]Entry

	// ShuffleRestorePending lists itemIDs awaiting a "finished" signal before
	// being dropped. Bookkeeping only; it drives no control flow.
	ShuffleRestorePending []string
}

// NewState returns an empty queue state.
func NewState() State {
	return State{Entries: make(map[string]Entry)}
}

// Ordered returns the live entries sorted by QueueOrder.
func (s *State) Ordered() []Entry {
	entries := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].QueueOrder < entries[j].QueueOrder
	})
	return entries
}

// maxOrder returns the highest QueueOrder among live entries, 0 if empty.
func (s *State) maxOrder() int {
	max := 0
	for _, e := range s.Entries {
		if e.QueueOrder > max {
			max = e.QueueOrder
		}
	}
	return max
}

// Transition actions reported by OnPlaylistPositionObserved.
const (
	// TransitionQueuedItemStarted records that a queued item began playing.
	TransitionQueuedItemStarted = "queued_item_started"

	// TransitionAutoPlayNext records that the engine corrected course by
	// playing the next queued item itself.
	TransitionAutoPlayNext = "auto_play_next_queued"
)

// Transition is one queue action taken during transition observation.
type Transition struct {
	Action   string
	ItemID   string
	ItemName string
}

// TransitionReport summarizes the actions taken for one observed playlist
// position change.
type TransitionReport struct {
	Transitions            []Transition
	QueueDepth             int
	PendingShuffleRestores int
}

// EnqueueResult reports a successful enqueue.
type EnqueueResult struct {
	ItemID           string
	ItemName         string
	QueueOrder       int
	TotalQueued      int
	ShuffleSuspended bool // true if this enqueue toggled shuffle off
}

// PlayResult reports a successful dequeue-and-play.
type PlayResult struct {
	ItemID     string
	ItemName   string
	QueueOrder int
}

// RemoveResult reports a successful removal.
type RemoveResult struct {
	ItemID     string
	ItemName   string
	QueueOrder int
}

// Status is a read-only snapshot of the queue for display.
type Status struct {
	Entries                []Entry
	ShuffleOn              bool
	PendingShuffleRestores []string
}
