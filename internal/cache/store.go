// Package cache persists the coordinator's durable state across restarts.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gatorguard/coordinator/internal/types"
)

// Store is a file-backed snapshot of coordinator state. Every mutation is
// flushed synchronously, so no shutdown hook is needed: the file is always
// current.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store writing to the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the last persisted snapshot. A missing file is a cold start
// and yields the default snapshot; a corrupt file is treated the same way
// but reported.
func (s *Store) Load() (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.DefaultSnapshot(), nil
		}
		return types.DefaultSnapshot(), fmt.Errorf("failed to read state file: %w", err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.DefaultSnapshot(), fmt.Errorf("failed to parse state file: %w", err)
	}
	if !snap.CurrentMode.Valid() {
		snap.CurrentMode = types.ModeWork
	}
	if snap.RecentLinks == nil {
		snap.RecentLinks = []types.LinkRecord{}
	}
	return snap, nil
}

// Save writes the snapshot to disk. The write goes through a temp file and
// rename so a crash mid-write cannot leave a truncated state file.
func (s *Store) Save(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
