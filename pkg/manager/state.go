package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Persistent state for ssh-control.
// Stores recently produced connections in a JSON file under the user's config dir:
//
//   ~/.config/ssh-control/state.json
//
// On systems honoring XDG, $XDG_CONFIG_HOME is used instead of ~/.config.

const (
	defaultConfigDirName = "ssh-control"
	defaultStateFilename = "state.json"

	defaultRecentsLimit = 100
)

// State represents the on-disk JSON structure.
type State struct {
	// Version allows future migrations.
	Version int `json:"version,omitempty"`

	// Recents is most-recent first, unique by Command.
	Recents []RecentHost `json:"recents,omitempty"`

	// Updated tracks the last update time in RFC3339.
	Updated string `json:"updated,omitempty"`
}

// RecentHost records one connection command handed to the launcher.
type RecentHost struct {
	Name     string `json:"name"`
	HostName string `json:"hostName"`
	Command  string `json:"command"`
	At       string `json:"at,omitempty"`
}

// DefaultConfigDir returns the directory for ssh-control's own files.
// Precedence:
//  1. $XDG_CONFIG_HOME/ssh-control
//  2. ~/.config/ssh-control
func DefaultConfigDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, defaultConfigDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", defaultConfigDirName), nil
}

// DefaultStatePath returns the full path to the state.json file.
func DefaultStatePath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultStateFilename), nil
}

// LoadState reads the state JSON from path. If path is empty, the default path is used.
// If the file does not exist, it returns an empty state and nil error.
func LoadState(path string) (*State, error) {
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultStatePath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Version: 1}, nil
		}
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", path, err)
	}
	if st.Version == 0 {
		st.Version = 1
	}
	st.ensureUnique()
	return &st, nil
}

// SaveState writes the state JSON to path atomically.
// If path is empty, the default path is used.
func SaveState(path string, st *State) error {
	if st == nil {
		return errors.New("nil state")
	}
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultStatePath()
		if err != nil {
			return err
		}
	}

	st2 := *st
	st2.Updated = time.Now().UTC().Format(time.RFC3339)
	st2.ensureUnique()
	payload, err := json.MarshalIndent(st2, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')
	return writeFileAtomic(path, payload)
}

// AddRecent moves r to the front of Recents, replacing any entry with the
// same command, and caps the list.
func (s *State) AddRecent(r RecentHost) bool {
	r.Command = strings.TrimSpace(r.Command)
	if r.Command == "" {
		return false
	}
	if r.At == "" {
		r.At = time.Now().UTC().Format(time.RFC3339)
	}
	out := make([]RecentHost, 0, len(s.Recents)+1)
	out = append(out, r)
	for _, prev := range s.Recents {
		if prev.Command == r.Command {
			continue
		}
		out = append(out, prev)
	}
	if len(out) > defaultRecentsLimit {
		out = out[:defaultRecentsLimit]
	}
	s.Recents = out
	return true
}

// RemoveRecent removes every entry whose name or hostName equals query.
func (s *State) RemoveRecent(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" || len(s.Recents) == 0 {
		return false
	}
	out := s.Recents[:0]
	removed := false
	for _, r := range s.Recents {
		if r.Name == query || r.HostName == query {
			removed = true
			continue
		}
		out = append(out, r)
	}
	s.Recents = out
	return removed
}

// PruneRecents caps the Recents list to the given limit (or default if <= 0).
func (s *State) PruneRecents(limit int) bool {
	if limit <= 0 {
		limit = defaultRecentsLimit
	}
	if len(s.Recents) <= limit {
		return false
	}
	s.Recents = s.Recents[:limit]
	return true
}

// ensureUnique drops empty and duplicate commands, keeping the first.
func (s *State) ensureUnique() {
	if len(s.Recents) == 0 {
		return
	}
	seen := map[string]struct{}{}
	out := make([]RecentHost, 0, len(s.Recents))
	for _, r := range s.Recents {
		r.Command = strings.TrimSpace(r.Command)
		if r.Command == "" {
			continue
		}
		if _, ok := seen[r.Command]; ok {
			continue
		}
		seen[r.Command] = struct{}{}
		out = append(out, r)
	}
	if len(out) > defaultRecentsLimit {
		out = out[:defaultRecentsLimit]
	}
	s.Recents = out
}
