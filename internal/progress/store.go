// Package progress persists the last fully committed block height.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileName is the name of the progress file inside the data directory.
const FileName = "height.json"

type state struct {
	Height uint64 `json:"height"`
}

// Store keeps the height in a single JSON file.
type Store struct {
	path string
}

// NewStore returns a store writing to dir/height.json.
func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName)}
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved height. found is false when nothing was saved yet.
func (s *Store) Load() (height uint64, found bool, err error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read progress: %w", err)
	}

	var st state
	if err := json.Unmarshal(raw, &st); err != nil {
		return 0, false, fmt.Errorf("decode progress %s: %w", s.path, err)
	}
	return st.Height, true, nil
}

// Save replaces the saved height. The file is never left half-written.
func (s *Store) Save(height uint64) error {
	raw, err := json.Marshal(state{Height: height})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create progress temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write progress: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync progress: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close progress: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}
