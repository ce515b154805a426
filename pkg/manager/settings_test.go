package manager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettings_MissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got != path {
		t.Fatalf("expected path %s, got %s", path, got)
	}
	if s.Remote.CacheTTL != DefaultCacheTTL || s.Remote.Timeout != DefaultFetchTimeout || s.Log.Level != "info" || s.API.Listen != DefaultAPIListen {
		t.Fatalf("unexpected defaults %+v", s)
	}
}

func TestLoadSettings_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
config_path: /srv/hosts.json
remote:
  cache_ttl: 30s
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, _, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.ConfigPath != "/srv/hosts.json" || s.Remote.CacheTTL != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", s)
	}
	if s.Remote.Timeout != DefaultFetchTimeout || s.Log.Level != "info" || s.Log.Format != "json" {
		t.Fatalf("defaults not kept: %+v", s)
	}
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"negative ttl", "remote:\n  cache_ttl: -1s\n", "cache_ttl"},
		{"bad yaml", "remote: [\n", "parse yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			s, _, err := LoadSettings(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
			if s.Log.Level != "info" {
				t.Fatalf("expected defaults on error, got %+v", s)
			}
		})
	}
}

func TestSaveSettings_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	in := DefaultSettings()
	in.WorkspaceDir = "/work"
	in.Remote.Timeout = 3 * time.Second
	if err := SaveSettings(path, in); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	out, _, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if out.WorkspaceDir != "/work" || out.Remote.Timeout != 3*time.Second {
		t.Fatalf("round trip lost values: %+v", out)
	}
}
