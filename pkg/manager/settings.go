package manager

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSettingsFilename = "settings.yaml"

	DefaultCacheTTL     = 5 * time.Minute
	DefaultFetchTimeout = 10 * time.Second
	DefaultAPIListen    = "127.0.0.1:7422"
)

// Settings holds ssh-control's own preferences, read from settings.yaml.
// They are distinct from the host tree (ssh-config.json).
type Settings struct {
	// ConfigPath overrides the global host-tree file.
	ConfigPath string `yaml:"config_path,omitempty"`

	// WorkspaceDir, when set, enables the workspace layer.
	WorkspaceDir string `yaml:"workspace_dir,omitempty"`

	Remote RemoteSettings `yaml:"remote"`
	Log    LogSettings    `yaml:"log"`
	API    APISettings    `yaml:"api"`
}

type RemoteSettings struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APISettings struct {
	Listen string `yaml:"listen"`
}

// DefaultSettings returns the values used when settings.yaml is absent.
func DefaultSettings() Settings {
	return Settings{
		Remote: RemoteSettings{CacheTTL: DefaultCacheTTL, Timeout: DefaultFetchTimeout},
		Log:    LogSettings{Level: "info", Format: "console"},
		API:    APISettings{Listen: DefaultAPIListen},
	}
}

// DefaultSettingsPath returns <config dir>/settings.yaml.
func DefaultSettingsPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultSettingsFilename), nil
}

// LoadSettings reads settings from path (default path when empty). A missing
// file yields DefaultSettings. Zero or omitted fields keep their defaults.
func LoadSettings(path string) (Settings, string, error) {
	s := DefaultSettings()
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultSettingsPath()
		if err != nil {
			return s, "", err
		}
	}
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, path, nil
		}
		return s, path, fmt.Errorf("read settings %s: %w", path, err)
	}

	var parsed Settings
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return s, path, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	s.merge(parsed)
	if err := s.Validate(); err != nil {
		return DefaultSettings(), path, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, path, nil
}

func (s *Settings) merge(o Settings) {
	if o.ConfigPath != "" {
		s.ConfigPath = expandPath(o.ConfigPath)
	}
	if o.WorkspaceDir != "" {
		s.WorkspaceDir = expandPath(o.WorkspaceDir)
	}
	if o.Remote.CacheTTL != 0 {
		s.Remote.CacheTTL = o.Remote.CacheTTL
	}
	if o.Remote.Timeout != 0 {
		s.Remote.Timeout = o.Remote.Timeout
	}
	if o.Log.Level != "" {
		s.Log.Level = o.Log.Level
	}
	if o.Log.Format != "" {
		s.Log.Format = o.Log.Format
	}
	if o.API.Listen != "" {
		s.API.Listen = o.API.Listen
	}
}

// Validate checks value ranges and enumerations.
func (s Settings) Validate() error {
	if s.Remote.CacheTTL < 0 {
		return fmt.Errorf("remote.cache_ttl must be positive, got %s", s.Remote.CacheTTL)
	}
	if s.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", s.Remote.Timeout)
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", s.Log.Level)
	}
	switch strings.ToLower(s.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q: want console or json", s.Log.Format)
	}
	return nil
}

// SaveSettings writes s as YAML to path (default path when empty).
func SaveSettings(path string, s Settings) error {
	if strings.TrimSpace(path) == "" {
		var err error
		path, err = DefaultSettingsPath()
		if err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return writeFileAtomic(expandPath(path), data)
}
