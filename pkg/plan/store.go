package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Store manages the plan areas under one root directory. Records move
// between areas by rename, never by copy, so a record exists in exactly
// one area at any time.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates the area directories and returns the store.
func NewStore(root string, logger zerolog.Logger) (*Store, error) {
	for _, area := range []string{AreaPending, AreaCompleted, AreaFailed} {
		if err := os.MkdirAll(filepath.Join(root, area), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s area: %w", area, err)
		}
	}
	return &Store{
		root:   root,
		logger: logger.With().Str("component", "plan-store").Logger(),
	}, nil
}

// AreaDir returns the directory of a storage area.
func (s *Store) AreaDir(area string) string {
	return filepath.Join(s.root, area)
}

// Load reads and validates a record file. A record without an id gets
// one assigned and written back, so the id survives restarts.
func (s *Store) Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid plan file %s: %w", path, err)
	}
	rec.ApplyDefaults()

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	dirty := false
	if rec.Task.ID == "" {
		rec.Task.ID = NewID()
		dirty = true
	}
	if rec.Task.File != absPath {
		rec.Task.File = absPath
		dirty = true
	}

	if err := ValidateRecord(&rec); err != nil {
		return nil, err
	}

	if dirty {
		if err := s.Save(&rec); err != nil {
			return nil, err
		}
	}

	s.logger.Debug().Str("plan_id", rec.Task.ID).Str("path", absPath).Msg("Plan loaded")
	return &rec, nil
}

// Save writes the record back to its backing file atomically.
func (s *Store) Save(rec *Record) error {
	if rec.Task.File == "" {
		return fmt.Errorf("plan %s has no backing file", rec.Task.ID)
	}
	return s.writeTo(rec, rec.Task.File)
}

func (s *Store) writeTo(rec *Record, path string) error {
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan %s: %w", rec.Task.ID, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace plan file: %w", err)
	}
	return nil
}

// Create places a new record in the pending area and assigns it an id.
func (s *Store) Create(rec *Record) error {
	rec.ApplyDefaults()
	if rec.Task.ID == "" {
		rec.Task.ID = NewID()
	}
	rec.Task.File = filepath.Join(s.AreaDir(AreaPending), rec.Task.ID+".toml")

	if err := ValidateRecord(rec); err != nil {
		return err
	}
	return s.Save(rec)
}

// AppendEvent records an event and persists the updated trail.
func (s *Store) AppendEvent(rec *Record, what string, details []string) error {
	rec.AppendEvent(what, details)
	return s.Save(rec)
}

// Archive moves the record's backing file into the given terminal area.
func (s *Store) Archive(rec *Record, area string) error {
	if area != AreaCompleted && area != AreaFailed {
		return fmt.Errorf("cannot archive into %q", area)
	}
	if rec.Task.File == "" {
		return fmt.Errorf("plan %s has no backing file", rec.Task.ID)
	}

	oldPath := rec.Task.File
	newPath := filepath.Join(s.AreaDir(area), filepath.Base(oldPath))

	// Write the final trail, with the file field already pointing at
	// the archived location, then move.
	rec.Task.File = newPath
	if err := s.writeTo(rec, oldPath); err != nil {
		rec.Task.File = oldPath
		return err
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		rec.Task.File = oldPath
		return fmt.Errorf("failed to archive plan %s: %w", rec.Task.ID, err)
	}

	s.logger.Info().
		Str("plan_id", rec.Task.ID).
		Str("area", area).
		Str("path", newPath).
		Msg("Plan archived")
	return nil
}

// List returns the record file paths in an area, sorted by name. Ids
// are time-sortable, so this is creation order.
func (s *Store) List(area string) ([]string, error) {
	entries, err := os.ReadDir(s.AreaDir(area))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s area: %w", area, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(s.AreaDir(area), entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
