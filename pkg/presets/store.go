// Package presets persists named gun configurations to a JSON file so a
// tuned setup survives daemon restarts. The file format matches what the
// original browser client reads and writes.
package presets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/trulydev/truly/internal/log"
)

// Preset is one saved correction profile.
type Preset struct {
	PullDown   float64 `json:"pull_down"`
	Horizontal float64 `json:"horizontal"`
	DelayMs    int     `json:"horizontal_delay_ms"`
	DurationMs int     `json:"horizontal_duration_ms"`
}

// ErrNotFound is returned when deleting or fetching an unknown preset.
var ErrNotFound = errors.New("presets: not found")

// validName keeps preset names filesystem- and URL-friendly.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_\- ]{1,50}$`)

// Store is a mutex-guarded preset collection backed by one JSON file.
// Reads after a corrupt or missing file degrade to an empty set; only
// write failures surface to the caller.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the file at path. The file is created
// lazily on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all presets keyed by name.
func (s *Store) List() map[string]Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Get returns the named preset.
func (s *Store) Get(name string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.readLocked()[name]
	if !ok {
		return Preset{}, ErrNotFound
	}
	return p, nil
}

// Save stores or overwrites the named preset.
func (s *Store) Save(name string, p Preset) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("presets: invalid name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.readLocked()
	all[name] = p
	return s.writeLocked(all)
}

// Delete removes the named preset.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.readLocked()
	if _, ok := all[name]; !ok {
		return ErrNotFound
	}
	delete(all, name)
	return s.writeLocked(all)
}

// Names returns the preset names in sorted order.
func (s *Store) Names() []string {
	all := s.List()
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Store) readLocked() map[string]Preset {
	out := make(map[string]Preset)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("preset file unreadable, starting empty", "path", s.path, "err", err)
		}
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warn("preset file corrupt, starting empty", "path", s.path, "err", err)
		return make(map[string]Preset)
	}
	return out
}

// writeLocked replaces the file atomically so a crash mid-write cannot
// destroy existing presets.
func (s *Store) writeLocked(all map[string]Preset) error {
	data, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return fmt.Errorf("presets: encode: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("presets: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("presets: replace: %w", err)
	}
	return nil
}
