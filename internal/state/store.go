// Package state persists monitoring snapshots to a JSON file.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"tablowatch/internal/models"
)

// Store loads and saves snapshots. It assumes a single writer.
type Store struct {
	clock  clock.Clock
	logger *logrus.Logger
}

// NewStore creates a snapshot store. A nil clock means the wall clock.
func NewStore(clk clock.Clock, logger *logrus.Logger) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{clock: clk, logger: logger}
}

// persisted mirrors models.Snapshot with optional fields so that missing
// keys can be told apart from zero values.
type persisted struct {
	Tables       map[string]models.TableState `json:"tables"`
	WatchedUsers *[]int64                     `json:"monitoredUsers"`
	LastScanTime *time.Time                   `json:"lastScanTime"`
}

// Load reads the snapshot at path. Any failure yields an empty snapshot;
// only the failure class is logged.
func (s *Store) Load(path string) models.Snapshot {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Infof("State file not found at %s, starting with fresh state", path)
		} else {
			s.logger.Errorf("Failed to read state file %s, starting with fresh state: %v", path, err)
		}
		return models.NewSnapshot(s.clock.Now())
	}

	var raw persisted
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warnf("Failed to parse state file %s, starting with fresh state: %v", path, err)
		return models.NewSnapshot(s.clock.Now())
	}
	if raw.Tables == nil || raw.WatchedUsers == nil || raw.LastScanTime == nil {
		s.logger.Warnf("Invalid state structure in %s, starting with fresh state", path)
		return models.NewSnapshot(s.clock.Now())
	}

	s.logger.Infof("Loaded monitoring state from %s (%d tables)", path, len(raw.Tables))
	return models.Snapshot{
		Tables:       raw.Tables,
		WatchedUsers: *raw.WatchedUsers,
		LastScanTime: *raw.LastScanTime,
	}
}

// Save validates snap and writes it to path through a temporary file that is
// renamed into place. If the write fails a timestamped backup is attempted
// and the original error is returned.
func (s *Store) Save(snap models.Snapshot, path string) error {
	if err := Validate(snap); err != nil {
		return fmt.Errorf("refusing to save invalid state: %w", err)
	}
	if snap.WatchedUsers == nil {
		snap.WatchedUsers = []int64{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		s.logger.Errorf("Failed to save state to %s: %v", path, err)
		backup := fmt.Sprintf("%s.backup.%d", path, s.clock.Now().UnixMilli())
		if berr := os.WriteFile(backup, data, 0644); berr != nil {
			s.logger.Errorf("Failed to save backup state: %v", berr)
		} else {
			s.logger.Warnf("Saved backup state to %s", backup)
		}
		return err
	}

	s.logger.Infof("Saved monitoring state to %s (%d tables, %d monitored users)",
		path, len(snap.Tables), len(snap.WatchedUsers))
	return nil
}

// Validate checks the structural invariants required for persistence.
func Validate(snap models.Snapshot) error {
	if snap.Tables == nil {
		return errors.New("tables must not be nil")
	}
	if snap.LastScanTime.IsZero() {
		return errors.New("last scan time must be set")
	}
	for id, t := range snap.Tables {
		if t.TableID == "" || t.VenueName == "" || t.Participants == nil {
			return fmt.Errorf("invalid table state for table %s", id)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move state file into place: %w", err)
	}
	return nil
}
