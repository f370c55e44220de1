package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectsDir is the subdirectory under .drover/ where projects live.
	ProjectsDir = "projects"
	// StateFile is the filename for project state records.
	StateFile = "state.yaml"
)

// ErrStateCorrupt wraps an unparsable state file. The store never
// attempts automatic repair.
var ErrStateCorrupt = errors.New("state file corrupt")

// ErrNotFound is returned when a project has no state file.
var ErrNotFound = errors.New("project not found")

// Store defines the persistence interface for project state.
type Store interface {
	Read(path string) (*Project, error)
	Write(path string, p *Project, event string) error
	Exists(path string) bool
}

// FileStore implements Store using the local filesystem.
type FileStore struct{}

// NewFileStore creates a filesystem-backed state store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// ProjectsPath returns the absolute path to the .drover/projects/ directory.
func ProjectsPath(root string) string {
	return filepath.Join(root, ".drover", ProjectsDir)
}

// ProjectPath returns the absolute path to a project's state.yaml.
func ProjectPath(root, projectID string) string {
	return filepath.Join(ProjectsPath(root), projectID, StateFile)
}

// Read loads a project state record.
func (fs *FileStore) Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrStateCorrupt, err)
	}
	if p.Gates == nil {
		p.Gates = map[string]GateRecord{}
	}
	return &p, nil
}

// Write persists a project state record atomically. It stamps
// updated_at and, when event is non-empty, appends a one-line history
// entry summarizing the transition just applied. The record is written
// to a temp file in the same directory and renamed into place, so a
// crash mid-write never yields a half-written file.
func (fs *FileStore) Write(path string, p *Project, event string) error {
	now := timeNow().UTC().Format(time.RFC3339)
	p.UpdatedAt = now
	if event != "" {
		p.History = append(p.History, HistoryEntry{At: now, Event: event})
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, StateFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}

// Exists reports whether a state file is present at path.
func (fs *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// List loads every project state under root. Unreadable entries are
// skipped; a single corrupt project must not hide the others from
// cross-project listings.
func (fs *FileStore) List(root string) ([]Project, error) {
	entries, err := os.ReadDir(ProjectsPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading projects directory: %w", err)
	}

	var result []Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := fs.Read(ProjectPath(root, entry.Name()))
		if err != nil {
			continue
		}
		result = append(result, *p)
	}
	return result, nil
}
