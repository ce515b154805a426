package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"go.uber.org/zap"
)

const (
	// ConfigFileName is the file name of both the global and workspace stores.
	ConfigFileName = "ssh-config.json"

	// WorkspacePrefix is prepended to workspace group names in the merged view.
	WorkspacePrefix = "[Workspace] "

	legacyConfigDirName = ".ssh-control"
)

// DefaultGlobalConfigPath returns the global config location.
// Precedence:
//  1. $SSH_CONTROL_CONFIG
//  2. $XDG_CONFIG_HOME/ssh-control/ssh-config.json
//  3. ~/.ssh-control/ssh-config.json
func DefaultGlobalConfigPath() (string, error) {
	if env := strings.TrimSpace(os.Getenv("SSH_CONTROL_CONFIG")); env != "" {
		return expandPath(env), nil
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, defaultConfigDirName, ConfigFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, legacyConfigDirName, ConfigFileName), nil
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// GlobalPath overrides DefaultGlobalConfigPath.
	GlobalPath string

	// WorkspaceDir enables the workspace store at WorkspaceDir/ssh-config.json.
	WorkspaceDir string

	Logger *zap.Logger
}

// Store loads, merges and persists the host tree.
//
// Reads merge the global file with the workspace file when the latter exists.
// There is no locking: two overlapping load-mutate-save sequences race and the
// last write wins.
type Store struct {
	globalPath    string
	workspacePath string
	log           *zap.Logger

	// writeFile is swapped in tests to simulate write failures.
	writeFile func(path string, data []byte) error
}

// NewStore resolves the store locations. Nothing is read or written yet.
func NewStore(opts StoreOptions) (*Store, error) {
	global := strings.TrimSpace(opts.GlobalPath)
	if global == "" {
		p, err := DefaultGlobalConfigPath()
		if err != nil {
			return nil, err
		}
		global = p
	}
	global = expandPath(global)

	var workspace string
	if dir := strings.TrimSpace(opts.WorkspaceDir); dir != "" {
		p, err := securejoin.SecureJoin(expandPath(dir), ConfigFileName)
		if err != nil {
			return nil, fmt.Errorf("resolve workspace config in %s: %w", dir, err)
		}
		workspace = p
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		globalPath:    global,
		workspacePath: workspace,
		log:           log.Named("store"),
		writeFile:     writeFileAtomic,
	}, nil
}

// GlobalPath returns the global config file path.
func (s *Store) GlobalPath() string { return s.globalPath }

// WorkspacePath returns the workspace config file path, or "" when no
// workspace directory was configured.
func (s *Store) WorkspacePath() string { return s.workspacePath }

// HasWorkspaceConfig reports whether the workspace config file exists.
func (s *Store) HasWorkspaceConfig() bool {
	return s.workspacePath != "" && fileExists(s.workspacePath)
}

// SavePath returns the file that receives writes: the workspace file when it
// exists, otherwise the global file.
func (s *Store) SavePath() string {
	if s.HasWorkspaceConfig() {
		return s.workspacePath
	}
	return s.globalPath
}

func (s *Store) writeScope() Scope {
	if s.HasWorkspaceConfig() {
		return ScopeWorkspace
	}
	return ScopeGlobal
}

func (s *Store) pathFor(scope Scope) string {
	if scope == ScopeWorkspace {
		return s.workspacePath
	}
	return s.globalPath
}

// Describe lists the active config files, workspace first.
func (s *Store) Describe() string {
	var parts []string
	if s.HasWorkspaceConfig() {
		parts = append(parts, "Workspace: "+s.workspacePath)
	}
	parts = append(parts, "Global: "+s.globalPath)
	return strings.Join(parts, " | ")
}

// ensureConfigExists writes the default config on first use of the global
// store. Failures are logged; Load then sees an empty global source.
func (s *Store) ensureConfigExists() {
	dir := filepath.Dir(s.globalPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		s.log.Warn("create config dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	if fileExists(s.globalPath) || s.HasWorkspaceConfig() {
		return
	}
	data, err := EncodeConfig(DefaultConfig())
	if err == nil {
		err = s.writeFile(s.globalPath, data)
	}
	if err != nil {
		s.log.Warn("write default config", zap.String("path", s.globalPath), zap.Error(err))
		return
	}
	s.log.Info("created default config", zap.String("path", s.globalPath))
}

// Load reads the global file and, when present, the workspace file, and
// returns the merged tree. Workspace groups are renamed with WorkspacePrefix
// and appended after the global groups.
//
// If either file fails to decode, Load returns an empty config together with
// the error; a partial tree is never returned.
func (s *Store) Load() (*Config, error) {
	s.ensureConfigExists()

	global, err := s.loadFile(s.globalPath)
	if err != nil {
		s.log.Error("load config", zap.String("path", s.globalPath), zap.Error(err))
		return emptyConfig(), err
	}
	if global == nil {
		global = emptyConfig()
	}
	setOrigin(global.Groups, ScopeGlobal)

	if !s.HasWorkspaceConfig() {
		return global, nil
	}
	workspace, err := s.loadFile(s.workspacePath)
	if err != nil {
		s.log.Error("load config", zap.String("path", s.workspacePath), zap.Error(err))
		return emptyConfig(), err
	}
	if workspace == nil {
		return global, nil
	}
	return mergeConfigs(global, workspace), nil
}

// loadFile returns (nil, nil) when path does not exist.
func (s *Store) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := DecodeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func mergeConfigs(global, workspace *Config) *Config {
	out := &Config{Groups: make([]Group, 0, len(global.Groups)+len(workspace.Groups))}
	out.Groups = append(out.Groups, global.Groups...)
	for _, g := range workspace.Groups {
		g.Name = WorkspacePrefix + g.Name
		g.origin = ScopeWorkspace
		out.Groups = append(out.Groups, g)
	}
	return out
}

func setOrigin(groups []Group, scope Scope) {
	for i := range groups {
		groups[i].origin = scope
	}
}

func emptyConfig() *Config {
	return &Config{Groups: []Group{}}
}

// Save writes cfg back to the files it came from. Each top-level group goes
// to the file that owns it with the workspace prefix stripped, so Save
// followed by Load returns the same tree. Groups that were never loaded go to
// SavePath. The global file is written first; the two writes are not atomic
// as a pair.
func (s *Store) Save(cfg *Config) error {
	if err := s.persist(cfg, ScopeGlobal); err != nil {
		return err
	}
	if s.HasWorkspaceConfig() || len(s.partition(cfg, ScopeWorkspace).Groups) > 0 {
		return s.persist(cfg, ScopeWorkspace)
	}
	return nil
}

// ownerOf returns the scope whose file holds the top-level group g.
func (s *Store) ownerOf(g Group) Scope {
	switch {
	case g.origin == scopeUnset:
		return s.writeScope()
	case g.origin == ScopeWorkspace && s.workspacePath == "":
		return ScopeGlobal
	}
	return g.origin
}

// partition returns the top-level groups owned by scope, as stored on disk.
func (s *Store) partition(cfg *Config, scope Scope) *Config {
	part := &Config{Groups: []Group{}}
	for _, g := range cfg.Groups {
		if s.ownerOf(g) != scope {
			continue
		}
		if scope == ScopeWorkspace {
			g.Name = strings.TrimPrefix(g.Name, WorkspacePrefix)
		}
		part.Groups = append(part.Groups, g)
	}
	return part
}

// persist writes the top-level groups owned by scope back to that scope's file.
func (s *Store) persist(cfg *Config, scope Scope) error {
	data, err := EncodeConfig(s.partition(cfg, scope))
	if err != nil {
		return err
	}
	target := s.pathFor(scope)
	if err := s.writeFile(target, data); err != nil {
		s.log.Error("save config", zap.String("path", target), zap.Error(err))
		return err
	}
	return nil
}

// mutate loads the merged tree, applies fn and persists the file that owns
// the change. fn reports the owning scope and whether anything changed.
func (s *Store) mutate(op string, fn func(cfg *Config) (Scope, bool)) (bool, error) {
	cfg, err := s.Load()
	if err != nil {
		return false, err
	}
	scope, changed := fn(cfg)
	if !changed {
		s.log.Debug("no-op", zap.String("op", op))
		return false, nil
	}
	if err := s.persist(cfg, scope); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("config updated", zap.String("op", op), zap.Stringer("scope", scope))
	return true, nil
}

// Validation errors returned by the mutators before anything is loaded.
var (
	ErrNameRequired     = errors.New("name is required")
	ErrHostNameRequired = errors.New("hostName is required")
)

// AddGroup appends group to the root when parent is empty, otherwise to the
// parent's nested groups. A parent that does not resolve is a no-op.
func (s *Store) AddGroup(group Group, parent GroupPath) (bool, error) {
	if err := validateGroup(group, GroupPath{}); err != nil {
		return false, fmt.Errorf("add group: %w", err)
	}
	return s.mutate("add group", func(cfg *Config) (Scope, bool) {
		g := group.clone()
		if g.Hosts == nil {
			g.Hosts = []Host{}
		}
		if len(parent) == 0 {
			g.origin = s.writeScope()
			cfg.Groups = append(cfg.Groups, g)
			return g.origin, true
		}
		p, ok := FindGroupByPath(cfg, parent)
		if !ok {
			return 0, false
		}
		p.Groups = append(p.Groups, g)
		return cfg.Groups[parent[0]].origin, true
	})
}

// validateGroup checks g and every nested group for a name, the rule Load
// enforces, so that no write can leave a file that fails to decode. path is
// relative to g.
func validateGroup(g Group, path GroupPath) error {
	if strings.TrimSpace(g.Name) == "" {
		if len(path) == 0 {
			return ErrNameRequired
		}
		return fmt.Errorf("subgroup [%s]: %w", path, ErrNameRequired)
	}
	for i, child := range g.Groups {
		if err := validateGroup(child, path.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// AddHost appends host to the group at path.
func (s *Store) AddHost(path GroupPath, host Host) (bool, error) {
	if strings.TrimSpace(host.HostName) == "" {
		return false, fmt.Errorf("add host: %w", ErrHostNameRequired)
	}
	return s.mutate("add host", func(cfg *Config) (Scope, bool) {
		g, ok := FindGroupByPath(cfg, path)
		if !ok {
			return 0, false
		}
		g.Hosts = append(g.Hosts, host.clone())
		return cfg.Groups[path[0]].origin, true
	})
}

// UpdateHost replaces hosts[index] of the group at path, only if it exists.
func (s *Store) UpdateHost(path GroupPath, index int, host Host) (bool, error) {
	if strings.TrimSpace(host.HostName) == "" {
		return false, fmt.Errorf("update host: %w", ErrHostNameRequired)
	}
	return s.mutate("update host", func(cfg *Config) (Scope, bool) {
		g, ok := FindGroupByPath(cfg, path)
		if !ok || index < 0 || index >= len(g.Hosts) {
			return 0, false
		}
		g.Hosts[index] = host.clone()
		return cfg.Groups[path[0]].origin, true
	})
}

// DeleteHost removes hosts[index] of the group at path, only if it exists.
func (s *Store) DeleteHost(path GroupPath, index int) (bool, error) {
	return s.mutate("delete host", func(cfg *Config) (Scope, bool) {
		g, ok := FindGroupByPath(cfg, path)
		if !ok || index < 0 || index >= len(g.Hosts) {
			return 0, false
		}
		g.Hosts = append(g.Hosts[:index], g.Hosts[index+1:]...)
		return cfg.Groups[path[0]].origin, true
	})
}

// DeleteGroup removes the group at path. Later siblings shift down by one,
// so any path referring to them is stale afterwards.
func (s *Store) DeleteGroup(path GroupPath) (bool, error) {
	return s.mutate("delete group", func(cfg *Config) (Scope, bool) {
		if len(path) == 0 {
			return 0, false
		}
		if len(path) == 1 {
			idx := path[0]
			if idx < 0 || idx >= len(cfg.Groups) {
				return 0, false
			}
			scope := cfg.Groups[idx].origin
			cfg.Groups = append(cfg.Groups[:idx], cfg.Groups[idx+1:]...)
			return scope, true
		}
		parent, ok := FindGroupByPath(cfg, path[:len(path)-1])
		idx := path[len(path)-1]
		if !ok || idx < 0 || idx >= len(parent.Groups) {
			return 0, false
		}
		parent.Groups = append(parent.Groups[:idx], parent.Groups[idx+1:]...)
		return cfg.Groups[path[0]].origin, true
	})
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place. The parent directory is created with 0700 permissions if missing.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	tmp := path + fmt.Sprintf(".tmp-%d-%d", os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("atomic rename to %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
