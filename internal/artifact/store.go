// Package artifact manages the on-disk output files produced for completed
// jobs: unique path naming, persistence, deletion, and directory listing
// for the cleanup sweeper.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// Length of the random suffix appended to artifact names.
const nameSuffixLength = 10

// Entry describes one file in the artifact directory.
type Entry struct {
	Path    string
	ModTime time.Time
}

// Store is an artifact directory rooted at a fixed path.
type Store struct {
	dir string
}

// New creates the store, ensuring the artifact directory exists.
func New(dir string) (*Store, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// NewName builds a unique artifact file name for a voice and extension:
// {voice}_{random-suffix}.{ext}.
func (s *Store) NewName(voiceID, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:nameSuffixLength]

	return fmt.Sprintf("%s_%s.%s", voiceID, suffix, ext)
}

// Write persists encoded bytes under the given name and returns the full
// path of the created file.
func (s *Store) Write(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, name)

	err := os.WriteFile(path, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", path, err)
	}

	return path, nil
}

// Remove deletes the file at path. A file that is already missing is not an
// error.
func (s *Store) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact %s: %w", path, err)
	}

	return nil
}

// Exists reports whether the file at path is present.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}

// List returns every regular file currently in the artifact directory with
// its modification time. Unreadable entries are skipped.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory %s: %w", s.dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))

	for _, dirEntry := range dirEntries {
		if dirEntry.IsDir() {
			continue
		}

		info, infoErr := dirEntry.Info()
		if infoErr != nil {
			continue
		}

		entries = append(entries, Entry{
			Path:    filepath.Join(s.dir, dirEntry.Name()),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}
