package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Store persists pending jobs to a single JSON file, rewritten after every
// mutation.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// backupFile is the on-disk shape of the schedule backup.
type backupFile struct {
	Jobs            []Job   `json:"jobs"`
	BackupTimestamp float64 `json:"backup_timestamp"`
}

// Load reads the persisted jobs. Missing or corrupt files yield an empty
// list; startup never fails on bad state.
func (s *Store) Load() []Job {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", s.path).Msg("Failed to read schedule backup")
		}
		return nil
	}

	var backup backupFile
	if err := json.Unmarshal(data, &backup); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("Corrupt schedule backup, starting empty")
		return nil
	}
	return backup.Jobs
}

// Save writes the jobs to disk.
func (s *Store) Save(jobs []Job) error {
	backup := backupFile{
		Jobs:            jobs,
		BackupTimestamp: float64(time.Now().UnixNano()) / 1e9,
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule backup: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write schedule backup: %w", err)
	}
	return nil
}
