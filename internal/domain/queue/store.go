package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists queue state to a single JSON file. The file is read once at
// engine construction and rewritten synchronously after every mutation.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// entryRecord is the on-disk shape of one queued item.
type entryRecord struct {
	ItemID         string  `json:"item_id"`
	ItemName       string  `json:"item_name"`
	QueueOrder     int     `json:"queue_order"`
	ShuffleWasOn   bool    `json:"shuffle_was_on"`
	RestoreShuffle bool    `json:"restore_shuffle"`
	QueuedAtTime   float64 `json:"queued_at_time"`
}

// backupFile is the on-disk shape of the whole queue state.
type backupFile struct {
	QueuedItems         map[string]entryRecord `json:"queued_items"`
	ShuffleRestoreQueue []string               `json:"shuffle_restore_queue"`
	BackupTimestamp     float64                `json:"backup_timestamp"`
}

// Load reads the persisted queue state. Missing, empty, legacy-format and
// corrupt files all yield an empty state; startup never fails on bad state.
func (s *Store) Load() State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", s.path).Msg("Failed to read queue backup")
		}
		return NewState()
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return NewState()
	}

	// The previous queue system persisted a flat array of records. Detect it
	// and start fresh rather than erroring.
	if data[0] == '[' {
		var legacy []map[string]json.RawMessage
		if err := json.Unmarshal(data, &legacy); err == nil && len(legacy) > 0 {
			if _, ok := legacy[0]["item_id"]; ok {
				log.Info().Str("file", s.path).Msg("Found old queue backup format, starting fresh")
			}
		}
		return NewState()
	}

	var backup backupFile
	if err := json.Unmarshal(data, &backup); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("Failed to parse queue backup, starting fresh")
		return NewState()
	}

	state := NewState()
	for id, rec := range backup.QueuedItems {
		if rec.ItemID == "" {
			// Tolerate partially written records keyed only by map key.
			rec.ItemID = id
		}
		state.Entries[rec.ItemID] = Entry{
			ItemID:         rec.ItemID,
			ItemName:       rec.ItemName,
			QueueOrder:     rec.QueueOrder,
			ShuffleWasOn:   rec.ShuffleWasOn,
			RestoreShuffle: rec.RestoreShuffle,
			QueuedAt:       time.Unix(int64(rec.QueuedAtTime), 0),
		}
	}
	state.ShuffleRestorePending = backup.ShuffleRestoreQueue

	log.Info().
		Int("queued", len(state.Entries)).
		Int("pending_restores", len(state.ShuffleRestorePending)).
		Msg("Loaded queue backup")
	return state
}

// Save rewrites the backup file with the given state.
func (s *Store) Save(state State) error {
	backup := backupFile{
		QueuedItems:         make(map[string]entryRecord, len(state.Entries)),
		ShuffleRestoreQueue: state.ShuffleRestorePending,
		BackupTimestamp:     float64(time.Now().Unix()),
	}
	if backup.ShuffleRestoreQueue == nil {
		backup.ShuffleRestoreQueue = []string{}
	}
	for id, e := range state.Entries {
		backup.QueuedItems[id] = entryRecord{
			ItemID:         e.ItemID,
			ItemName:       e.ItemName,
			QueueOrder:     e.QueueOrder,
			ShuffleWasOn:   e.ShuffleWasOn,
			RestoreShuffle: e.RestoreShuffle,
			QueuedAtTime:   float64(e.QueuedAt.Unix()),
		}
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue backup: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write queue backup: %w", err)
	}

	log.Debug().Str("file", s.path).Msg("Queue backup saved")
	return nil
}
