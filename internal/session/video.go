package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// VideoStore holds the workout videos recorded alongside sensor sessions,
// one asset per session file name.
type VideoStore struct {
	dir string
}

// NewVideoStore creates a store rooted at dir, creating it if needed.
func NewVideoStore(dir string) (*VideoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create video dir: %w", err)
	}
	return &VideoStore{dir: dir}, nil
}

// Path returns the asset path for a session file name.
func (v *VideoStore) Path(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return filepath.Join(v.dir, base+".mp4")
}

// Exists reports whether an asset is present for the session.
func (v *VideoStore) Exists(fileName string) bool {
	_, err := os.Stat(v.Path(fileName))
	return err == nil
}

// Remove deletes the asset for the session. A missing asset is a successful
// no-op.
func (v *VideoStore) Remove(fileName string) error {
	err := os.Remove(v.Path(fileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session: remove video %s: %w", fileName, err)
	}
	return nil
}
