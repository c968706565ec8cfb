package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orchid-dev/orchid/internal/state"
)

const scheduleFileName = "schedule-state.json"

// persistedSchedules is the serializable representation of armed entries.
type persistedSchedules struct {
	Entries map[string]*Entry `json:"entries"`
}

// persistLocked writes all entries to disk atomically (tmp file + rename)
// under the data directory's file lock. The caller holds s.mu.
func (s *Scheduler) persistLocked() error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create schedule directory: %w", err)
	}

	fl := state.NewFileLock(s.dir)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.MarshalIndent(persistedSchedules{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule state: %w", err)
	}

	target := filepath.Join(s.dir, scheduleFileName)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// loadEntries reads persisted entries from dir. Returns an empty map when
// no schedule file exists yet.
func loadEntries(dir string) (map[string]*Entry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create schedule directory: %w", err)
	}

	fl := state.NewFileLock(dir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(filepath.Join(dir, scheduleFileName))
	if os.IsNotExist(err) {
		return map[string]*Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}

	var persisted persistedSchedules
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("unmarshal schedule state: %w", err)
	}
	if persisted.Entries == nil {
		persisted.Entries = map[string]*Entry{}
	}
	return persisted.Entries, nil
}
