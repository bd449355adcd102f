package queue_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/cinecue/cinecue/internal/domain/queue"
	"github.com/cinecue/cinecue/internal/infra/vlc"
)

// fakePlayer implements queue.Player in memory.
type fakePlayer struct {
	shuffle     bool
	shuffleErr  error
	playErr     error
	playlistErr error
	playlist    []vlc.PlaylistItem
	played      []string
	toggles     int
}

func (f *fakePlayer) GetShuffleState() (bool, error) {
	return f.shuffle, f.shuffleErr
}

func (f *fakePlayer) ToggleShuffle() error {
	f.shuffle = !f.shuffle
	f.toggles++
	return nil
}

func (f *fakePlayer) PlayItem(id string) error {
	if f.playErr != nil {
		return f.playErr
	}
	f.played = append(f.played, id)
	return nil
}

func (f *fakePlayer) GetPlaylist() ([]vlc.PlaylistItem, error) {
	return f.playlist, f.playlistErr
}

func newTestEngine(t *testing.T, player *fakePlayer) *queue.Engine {
	t.Helper()
	store := queue.NewStore(filepath.Join(t.TempDir(), "queue_backup.json"))
	return queue.NewEngine(player, store)
}

func TestEnqueueAssignsFIFOOrders(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)

	for i, id := range []string{"10", "12", "14"} {
		res, err := engine.Enqueue(id, "Movie "+id)
		if err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
		if res.QueueOrder != i+1 {
			t.Errorf("Expected order %d for item %s, got %d", i+1, id, res.QueueOrder)
		}
		if res.TotalQueued != i+1 {
			t.Errorf("Expected total %d, got %d", i+1, res.TotalQueued)
		}
	}

	head, ok := engine.PeekNext()
	if !ok {
		t.Fatal("PeekNext should find an entry")
	}
	if head.ItemID != "10" || head.QueueOrder != 1 {
		t.Errorf("Expected head item 10 order 1, got %s order %d", head.ItemID, head.QueueOrder)
	}
}

func TestEnqueueDuplicateRejected(t *testing.T) {
	engine := newTestEngine(t, &fakePlayer{})

	if _, err := engine.Enqueue("10", "Movie A"); err != nil {
		t.Fatalf("First enqueue failed: %v", err)
	}
	_, err := engine.Enqueue("10", "Movie A")
	if !errors.Is(err, queue.ErrAlreadyQueued) {
		t.Errorf("Expected ErrAlreadyQueued, got %v", err)
	}
	if engine.Len() != 1 {
		t.Errorf("Duplicate enqueue should not grow the queue, len=%d", engine.Len())
	}
}

func TestEnqueueSuspendsShuffleAndMigratesFlag(t *testing.T) {
	player := &fakePlayer{shuffle: true}
	engine := newTestEngine(t, player)

	// First enqueue under shuffle: shuffle toggled off, new entry flagged.
	if _, err := engine.Enqueue("A", "Movie A"); err != nil {
		t.Fatalf("Enqueue(A) failed: %v", err)
	}
	if player.shuffle {
		t.Error("Shuffle should have been suspended on first enqueue")
	}
	if player.toggles != 1 {
		t.Errorf("Expected 1 shuffle toggle, got %d", player.toggles)
	}

	status := engine.GetQueueStatus()
	if len(status.Entries) != 1 || !status.Entries[0].RestoreShuffle {
		t.Fatal("Entry A should carry the restore flag")
	}

	// Second enqueue: the flag migrates to the deepest entry.
	if _, err := engine.Enqueue("B", "Movie B"); err != nil {
		t.Fatalf("Enqueue(B) failed: %v", err)
	}
	status = engine.GetQueueStatus()
	flagged := 0
	for _, entry := range status.Entries {
		if entry.RestoreShuffle {
			flagged++
			if entry.ItemID != "B" {
				t.Errorf("Restore flag should sit on B, found it on %s", entry.ItemID)
			}
		}
	}
	if flagged != 1 {
		t.Errorf("Exactly one entry should carry the restore flag, got %d", flagged)
	}
}

func TestEnqueueWithShuffleOffNeverFlags(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)

	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	if player.toggles != 0 {
		t.Errorf("Shuffle should not have been touched, toggles=%d", player.toggles)
	}
	for _, entry := range engine.GetQueueStatus().Entries {
		if entry.RestoreShuffle {
			t.Errorf("Entry %s should not carry the restore flag", entry.ItemID)
		}
	}
}

func TestEnqueuePlayerFailureLeavesStateUnchanged(t *testing.T) {
	player := &fakePlayer{shuffleErr: errors.New("connection refused")}
	engine := newTestEngine(t, player)

	if _, err := engine.Enqueue("A", "Movie A"); err == nil {
		t.Fatal("Enqueue should fail when the shuffle state cannot be read")
	}
	if engine.Len() != 0 {
		t.Error("Failed enqueue must not leave an entry behind")
	}
}

func TestDequeueAndPlayRemovesHead(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	res, err := engine.DequeueAndPlay()
	if err != nil {
		t.Fatalf("DequeueAndPlay failed: %v", err)
	}
	if res.ItemID != "A" || res.QueueOrder != 1 {
		t.Errorf("Expected to play A (order 1), got %s (order %d)", res.ItemID, res.QueueOrder)
	}
	if engine.Len() != 1 {
		t.Errorf("Queue should shrink by exactly one, len=%d", engine.Len())
	}
	if len(player.played) != 1 || player.played[0] != "A" {
		t.Errorf("Player should have been told to play A, got %v", player.played)
	}
}

func TestDequeueResolveNameFromLivePlaylist(t *testing.T) {
	player := &fakePlayer{playlist: []vlc.PlaylistItem{
		{ID: "A", Name: "Movie A (Remastered)"},
	}}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")

	res, err := engine.DequeueAndPlay()
	if err != nil {
		t.Fatalf("DequeueAndPlay failed: %v", err)
	}
	if res.ItemName != "Movie A (Remastered)" {
		t.Errorf("Expected live playlist name, got %q", res.ItemName)
	}
}

func TestDequeueFallsBackToSnapshotName(t *testing.T) {
	// Item no longer resolvable in the playlist.
	player := &fakePlayer{playlist: []vlc.PlaylistItem{{ID: "Z", Name: "Other"}}}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")

	res, err := engine.DequeueAndPlay()
	if err != nil {
		t.Fatalf("DequeueAndPlay failed: %v", err)
	}
	if res.ItemName != "Movie A" {
		t.Errorf("Expected snapshot name, got %q", res.ItemName)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	engine := newTestEngine(t, &fakePlayer{})

	_, err := engine.DequeueAndPlay()
	if !errors.Is(err, queue.ErrQueueEmpty) {
		t.Errorf("Expected ErrQueueEmpty, got %v", err)
	}
}

func TestDequeuePlayFailureLeavesStateUnchanged(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")

	player.playErr = errors.New("timeout")
	if _, err := engine.DequeueAndPlay(); err == nil {
		t.Fatal("DequeueAndPlay should surface the play failure")
	}
	if engine.Len() != 1 {
		t.Error("Failed play must leave the entry in the queue")
	}
}

func TestShuffleRestoredWhenLastFlaggedEntryStarts(t *testing.T) {
	player := &fakePlayer{shuffle: true}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A") // suspends shuffle, flag on A
	engine.Enqueue("B", "Movie B") // flag migrates to B

	// A plays: not the last entry, shuffle stays off.
	if _, err := engine.DequeueAndPlay(); err != nil {
		t.Fatalf("First dequeue failed: %v", err)
	}
	if player.shuffle {
		t.Error("Shuffle must stay suspended while queue is non-empty")
	}

	// B plays: last entry and flag carrier, shuffle comes back on.
	if _, err := engine.DequeueAndPlay(); err != nil {
		t.Fatalf("Second dequeue failed: %v", err)
	}
	if !player.shuffle {
		t.Error("Shuffle should be restored as the last queued item starts")
	}

	status := engine.GetQueueStatus()
	if len(status.Entries) != 0 {
		t.Error("Queue should be empty")
	}
	if len(status.PendingShuffleRestores) != 0 {
		t.Error("Bookkeeping list must not outlive an empty queue")
	}
}

func TestRemoveByQueueOrder(t *testing.T) {
	engine := newTestEngine(t, &fakePlayer{})
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	res, err := engine.RemoveByQueueOrder(1)
	if err != nil {
		t.Fatalf("RemoveByQueueOrder failed: %v", err)
	}
	if res.ItemID != "A" {
		t.Errorf("Expected to remove A, got %s", res.ItemID)
	}

	_, err = engine.RemoveByQueueOrder(9)
	if !errors.Is(err, queue.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestRemoveReassignsRestoreFlag(t *testing.T) {
	player := &fakePlayer{shuffle: true}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A") // shuffle on, flag A
	engine.Enqueue("B", "Movie B") // flag migrates to B

	// Removing the flag carrier hands the flag to the deepest remaining
	// entry queued under shuffle.
	if _, err := engine.RemoveByQueueOrder(2); err != nil {
		t.Fatalf("RemoveByQueueOrder failed: %v", err)
	}
	status := engine.GetQueueStatus()
	if len(status.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(status.Entries))
	}
	if !status.Entries[0].RestoreShuffle {
		t.Error("Restore flag should have been reassigned to A")
	}
}

func TestRemoveFlagNotReassignedWithoutShuffleHistory(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A") // shuffle off
	player.shuffle = true
	engine.Enqueue("B", "Movie B") // queue non-empty: no suspend, no flag inherit

	if _, err := engine.RemoveByQueueOrder(2); err != nil {
		t.Fatalf("RemoveByQueueOrder failed: %v", err)
	}
	for _, entry := range engine.GetQueueStatus().Entries {
		if entry.RestoreShuffle {
			t.Errorf("No remaining entry should carry the flag, %s does", entry.ItemID)
		}
	}
}

func TestRemoveByPlaylistPosition(t *testing.T) {
	player := &fakePlayer{playlist: []vlc.PlaylistItem{
		{ID: "10", Name: "Alien"},
		{ID: "12", Name: "The Thing"},
		{ID: "14", Name: "Tremors"},
	}}
	engine := newTestEngine(t, player)
	engine.Enqueue("12", "The Thing")

	t.Run("position not in playlist", func(t *testing.T) {
		_, err := engine.RemoveByPlaylistPosition(5)
		if !errors.Is(err, queue.ErrPositionNotFound) {
			t.Errorf("Expected ErrPositionNotFound, got %v", err)
		}
	})

	t.Run("position not queued", func(t *testing.T) {
		_, err := engine.RemoveByPlaylistPosition(3)
		if !errors.Is(err, queue.ErrPositionNotQueued) {
			t.Errorf("Expected ErrPositionNotQueued, got %v", err)
		}
		if engine.Len() != 1 {
			t.Error("Failed removal must not mutate the queue")
		}
	})

	t.Run("queued position removed", func(t *testing.T) {
		res, err := engine.RemoveByPlaylistPosition(2)
		if err != nil {
			t.Fatalf("RemoveByPlaylistPosition failed: %v", err)
		}
		if res.ItemID != "12" {
			t.Errorf("Expected to remove item 12, got %s", res.ItemID)
		}
		if engine.Len() != 0 {
			t.Error("Queue should be empty")
		}
	})
}

func TestClearAllIsIdempotent(t *testing.T) {
	engine := newTestEngine(t, &fakePlayer{shuffle: true})
	engine.Enqueue("A", "Movie A")

	engine.ClearAll()
	engine.ClearAll()

	status := engine.GetQueueStatus()
	if len(status.Entries) != 0 || len(status.PendingShuffleRestores) != 0 {
		t.Error("ClearAll should drop all entries and bookkeeping")
	}
}

func TestObservedQueuedItemIsStruckOff(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	report := engine.OnPlaylistPositionObserved("A")
	if len(report.Transitions) != 1 || report.Transitions[0].Action != queue.TransitionQueuedItemStarted {
		t.Fatalf("Expected a queued_item_started transition, got %+v", report.Transitions)
	}
	if report.QueueDepth != 1 {
		t.Errorf("Expected depth 1, got %d", report.QueueDepth)
	}
	if len(player.played) != 0 {
		t.Errorf("Observation of a queued item must not issue play commands, got %v", player.played)
	}
}

func TestObservedUnexpectedItemAutoPlaysNext(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("B", "Movie B")

	// Some other track started: the player advanced on its own.
	report := engine.OnPlaylistPositionObserved("X")
	if len(report.Transitions) != 1 || report.Transitions[0].Action != queue.TransitionAutoPlayNext {
		t.Fatalf("Expected an auto_play_next_queued transition, got %+v", report.Transitions)
	}
	if len(player.played) != 1 || player.played[0] != "B" {
		t.Errorf("Engine should have corrected course by playing B, got %v", player.played)
	}
	if report.QueueDepth != 0 {
		t.Errorf("Expected empty queue after correction, depth=%d", report.QueueDepth)
	}
}

func TestObservedSameItemTwiceIsIdempotent(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	first := engine.OnPlaylistPositionObserved("A")
	second := engine.OnPlaylistPositionObserved("A")

	if len(first.Transitions) != 1 {
		t.Fatalf("First observation should strike A off, got %+v", first.Transitions)
	}
	if len(second.Transitions) != 0 {
		t.Errorf("Repeated observation must be a no-op, got %+v", second.Transitions)
	}
	if second.QueueDepth != 1 {
		t.Errorf("Repeated observation must not remove further entries, depth=%d", second.QueueDepth)
	}
	if len(player.played) != 0 {
		t.Errorf("Repeated observation must not double-fire auto-play, got %v", player.played)
	}
}

func TestObservedDequeuedItemDoesNotChainAdvance(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	if _, err := engine.DequeueAndPlay(); err != nil {
		t.Fatalf("DequeueAndPlay failed: %v", err)
	}

	// The poller now observes A playing. A was already removed at dequeue
	// time, but the transition still corresponds to a queue entry: B must
	// not be started on top of it.
	report := engine.OnPlaylistPositionObserved("A")
	if len(report.Transitions) != 1 || report.Transitions[0].Action != queue.TransitionQueuedItemStarted {
		t.Fatalf("Expected queued_item_started for the dequeued item, got %+v", report.Transitions)
	}
	if engine.Len() != 1 {
		t.Errorf("B should still be queued, len=%d", engine.Len())
	}
	if len(player.played) != 1 {
		t.Errorf("No further play command expected, got %v", player.played)
	}
}

func TestObservedCorrectionRetriesAfterPlayerFailure(t *testing.T) {
	player := &fakePlayer{}
	engine := newTestEngine(t, player)
	engine.Enqueue("B", "Movie B")

	player.playErr = errors.New("connection refused")
	report := engine.OnPlaylistPositionObserved("X")
	if len(report.Transitions) != 0 {
		t.Fatalf("Failed correction must not report a transition, got %+v", report.Transitions)
	}
	if engine.Len() != 1 {
		t.Fatalf("B must stay queued after the failed play, len=%d", engine.Len())
	}

	// The same observation on the next poll cycle retries the correction.
	player.playErr = nil
	report = engine.OnPlaylistPositionObserved("X")
	if len(report.Transitions) != 1 || report.Transitions[0].Action != queue.TransitionAutoPlayNext {
		t.Fatalf("Expected the retried correction, got %+v", report.Transitions)
	}
	if len(player.played) != 1 || player.played[0] != "B" {
		t.Errorf("played = %v, want [B]", player.played)
	}
	if engine.Len() != 0 {
		t.Errorf("Queue should be drained, len=%d", engine.Len())
	}
}

func TestOnTrackFinishedCleansBookkeeping(t *testing.T) {
	player := &fakePlayer{shuffle: true}
	engine := newTestEngine(t, player)
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	// Only A was enqueued while shuffle was still on; B arrived after the
	// suspension and carries no bookkeeping.
	status := engine.GetQueueStatus()
	if len(status.PendingShuffleRestores) != 1 || status.PendingShuffleRestores[0] != "A" {
		t.Fatalf("Expected only A pending, got %v", status.PendingShuffleRestores)
	}

	// Unknown item is a no-op.
	engine.OnTrackFinished("Z")
	if len(engine.GetQueueStatus().PendingShuffleRestores) != 1 {
		t.Error("OnTrackFinished with unknown item must be a no-op")
	}

	engine.OnTrackFinished("A")
	if got := engine.GetQueueStatus().PendingShuffleRestores; len(got) != 0 {
		t.Errorf("Expected no pending restores after A finished, got %v", got)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	player := &fakePlayer{shuffle: true}
	path := filepath.Join(t.TempDir(), "queue_backup.json")

	engine := queue.NewEngine(player, queue.NewStore(path))
	engine.Enqueue("A", "Movie A")
	engine.Enqueue("B", "Movie B")

	// New engine instance over the same backing file.
	reloaded := queue.NewEngine(player, queue.NewStore(path))
	status := reloaded.GetQueueStatus()
	if len(status.Entries) != 2 {
		t.Fatalf("Expected 2 entries after reload, got %d", len(status.Entries))
	}
	if status.Entries[0].ItemID != "A" || status.Entries[1].ItemID != "B" {
		t.Errorf("FIFO order lost across restart: %+v", status.Entries)
	}
	if !status.Entries[1].RestoreShuffle {
		t.Error("Restore flag lost across restart")
	}
}
