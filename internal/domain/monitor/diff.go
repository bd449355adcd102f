package monitor

// Snapshot is one observation of the player, taken per poll cycle.
type Snapshot struct {
	State    string // "playing", "paused", "stopped" or "" when unknown
	ItemID   string // current playlist item id, "" if none
	ItemName string
	Position int // 1-based playlist position, 0 if unknown
	TimeLeft int // seconds remaining in the current item, -1 if unknown
}

// Diff describes what changed between two consecutive snapshots.
type Diff struct {
	StateChanged    bool
	PositionChanged bool
}

// diffSnapshots compares two snapshots. Pure function so transition
// detection stays testable independent of the poll loop.
func diffSnapshots(prev, curr Snapshot) Diff {
	return Diff{
		StateChanged:    prev.State != curr.State,
		PositionChanged: prev.ItemID != curr.ItemID,
	}
}

// nearEnd reports whether the snapshot is within the end-of-item threshold.
// Centralized so every auto-advance caller shares the same cutoff.
func nearEnd(s Snapshot) bool {
	return s.TimeLeft >= 0 && s.TimeLeft <= nearEndSeconds
}
