// Package manager contains the host tree model, inheritance resolution and the
// config store for ssh-control.
package manager

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the root of the persisted host tree.
//
// Example JSON:
//
//	{
//	  "groups": [
//	    {
//	      "name": "prod",
//	      "defaultUser": "deploy",
//	      "defaultPort": 2222,
//	      "hosts": [
//	        { "hostName": "10.0.0.5", "name": "web1" }
//	      ],
//	      "groups": [
//	        { "name": "db", "defaultUser": "postgres", "hosts": [] }
//	      ],
//	      "remoteHosts": { "address": "https://inventory.example.com/hosts?ts=[timestamp]" }
//	    }
//	  ]
//	}
type Config struct {
	Groups []Group `json:"groups"`
}

// AuthMethod is the preferred SSH authentication method.
type AuthMethod string

const (
	AuthPublicKey AuthMethod = "publickey"
	AuthPassword  AuthMethod = "password"
)

// Snippet is a named command attached to a host or group.
type Snippet struct {
	Name    string `json:"name"`
	Command string `json:"command"`
}

// Host is a single SSH target. Optional fields are left at their zero value
// when unset; defaults are applied by ResolveHostSettings, never here.
type Host struct {
	// HostName is the connection target (DNS name or IP).
	HostName string `json:"hostName"`

	// Name is the display label. Not guaranteed unique.
	Name string `json:"name"`

	User                    string     `json:"user,omitempty"`
	Port                    int        `json:"port,omitempty"`
	IdentityFile            string     `json:"identityFile,omitempty"`
	PreferredAuthentication AuthMethod `json:"preferredAuthentication,omitempty"`
	Snippets                []Snippet  `json:"snippets,omitempty"`
}

// Group owns its direct hosts and nested subgroups and provides defaults
// for everything below it.
type Group struct {
	Name                           string     `json:"name"`
	DefaultUser                    string     `json:"defaultUser,omitempty"`
	DefaultPort                    int        `json:"defaultPort,omitempty"`
	DefaultIdentityFile            string     `json:"defaultIdentityFile,omitempty"`
	DefaultPreferredAuthentication AuthMethod `json:"defaultPreferredAuthentication,omitempty"`
	Snippets                       []Snippet  `json:"snippets,omitempty"`

	// Hosts is never nil after DecodeConfig.
	Hosts []Host `json:"hosts"`

	// Groups is nil when the group has no (or malformed) nested groups.
	Groups []Group `json:"groups,omitempty"`

	// RemoteHosts designates an external fragment merged into this group's
	// children at read time.
	RemoteHosts *RemoteHostsConfig `json:"remoteHosts,omitempty"`

	// origin records which file a top-level group was loaded from.
	origin Scope
}

// RemoteHostsConfig points at an externally hosted host/group fragment.
// Every "[timestamp]" token in Address is replaced with the current epoch
// milliseconds right before each fetch.
type RemoteHostsConfig struct {
	Address   string     `json:"address"`
	BasicAuth *BasicAuth `json:"basicAuth,omitempty"`
}

// BasicAuth holds HTTP basic credentials for a remote fragment.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RemoteResponse is the parsed body of a remote fragment.
type RemoteResponse struct {
	Hosts  []Host  `json:"hosts,omitempty"`
	Groups []Group `json:"groups,omitempty"`
}

// Scope identifies a config source.
type Scope int

const (
	// scopeUnset marks groups built in memory rather than loaded from a file.
	scopeUnset Scope = iota
	ScopeGlobal
	ScopeWorkspace
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeWorkspace:
		return "workspace"
	}
	return "unset"
}

// GroupPath is a sequence of sibling indices from the root to a group.
// [0, 2] is the root's group 0, then its subgroup 2.
//
// Paths are positional: inserting or removing a sibling invalidates every path
// that refers to a later sibling in the same list. Re-resolve after mutations.
type GroupPath []int

// String renders the path in its dotted form ("0.2"). The empty path is "".
func (p GroupPath) String() string {
	parts := make([]string, len(p))
	for i, idx := range p {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ".")
}

// Child returns a new path with idx appended. The receiver is not modified.
func (p GroupPath) Child(idx int) GroupPath {
	out := make(GroupPath, len(p), len(p)+1)
	copy(out, p)
	return append(out, idx)
}

// ParseGroupPath parses the dotted form produced by GroupPath.String.
// An empty (or ".") string is the root path.
func ParseGroupPath(s string) (GroupPath, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return GroupPath{}, nil
	}
	parts := strings.Split(s, ".")
	out := make(GroupPath, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid group path %q: %w", s, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid group path %q: negative index %d", s, n)
		}
		out = append(out, n)
	}
	return out, nil
}

// FindGroupByPath walks path through cfg and returns the target group.
// It reports false when any index is out of range and for the empty path.
// The returned pointer aliases cfg, so callers may mutate through it.
func FindGroupByPath(cfg *Config, path GroupPath) (*Group, bool) {
	if cfg == nil || len(path) == 0 {
		return nil, false
	}
	current := cfg.Groups
	var group *Group
	for _, idx := range path {
		if idx < 0 || idx >= len(current) {
			return nil, false
		}
		group = &current[idx]
		current = group.Groups
	}
	return group, true
}

// ErrInvalidJSON is returned when a config file is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// StructuralError reports a group that cannot be part of the tree. A single
// structural error fails the whole load.
type StructuralError struct {
	Path GroupPath
	Msg  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("invalid group structure at [%s]: %s", e.Path, e.Msg)
}

// DefaultConfig returns the config written on first use of the global store.
func DefaultConfig() *Config {
	return &Config{
		Groups: []Group{
			{
				Name:        "Default",
				DefaultUser: "root",
				DefaultPort: 22,
				Snippets: []Snippet{
					{Name: "System Status", Command: "uname -a && uptime && df -h"},
					{Name: "Process Monitor", Command: "top -n 1 | head -20"},
				},
				Hosts: []Host{},
			},
		},
	}
}

// rawGroup keeps the list-valued fields undecoded so that a wrong type can be
// normalized instead of failing the whole decode.
type rawGroup struct {
	Name                           json.RawMessage    `json:"name"`
	DefaultUser                    string             `json:"defaultUser"`
	DefaultPort                    int                `json:"defaultPort"`
	DefaultIdentityFile            string             `json:"defaultIdentityFile"`
	DefaultPreferredAuthentication AuthMethod         `json:"defaultPreferredAuthentication"`
	Snippets                       json.RawMessage    `json:"snippets"`
	Hosts                          json.RawMessage    `json:"hosts"`
	Groups                         json.RawMessage    `json:"groups"`
	RemoteHosts                    *RemoteHostsConfig `json:"remoteHosts"`
}

// DecodeConfig parses and normalizes a config file.
//
//   - a root that is not a JSON object yields an empty config
//   - a group without a non-empty string name fails the whole decode
//   - hosts that are not a list become an empty list
//   - nested groups or snippets that are not a list become absent
func DecodeConfig(data []byte) (*Config, error) {
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}
	if jsonKind(data) != '{' {
		return &Config{Groups: []Group{}}, nil
	}
	var root struct {
		Groups json.RawMessage `json:"groups"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	cfg := &Config{Groups: []Group{}}
	if jsonKind(root.Groups) != '[' {
		return cfg, nil
	}
	groups, err := decodeGroups(root.Groups, GroupPath{})
	if err != nil {
		return nil, err
	}
	cfg.Groups = groups
	return cfg, nil
}

func decodeGroups(data json.RawMessage, parent GroupPath) ([]Group, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &StructuralError{Path: parent, Msg: err.Error()}
	}
	out := make([]Group, 0, len(items))
	for i, item := range items {
		g, err := decodeGroup(item, parent.Child(i))
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func decodeGroup(data json.RawMessage, path GroupPath) (Group, error) {
	if jsonKind(data) != '{' {
		return Group{}, &StructuralError{Path: path, Msg: "group is not an object"}
	}
	var raw rawGroup
	if err := json.Unmarshal(data, &raw); err != nil {
		return Group{}, &StructuralError{Path: path, Msg: err.Error()}
	}
	var name string
	if jsonKind(raw.Name) == '"' {
		_ = json.Unmarshal(raw.Name, &name)
	}
	if name == "" {
		return Group{}, &StructuralError{Path: path, Msg: "name is required"}
	}

	g := Group{
		Name:                           name,
		DefaultUser:                    raw.DefaultUser,
		DefaultPort:                    raw.DefaultPort,
		DefaultIdentityFile:            raw.DefaultIdentityFile,
		DefaultPreferredAuthentication: raw.DefaultPreferredAuthentication,
		RemoteHosts:                    raw.RemoteHosts,
		Hosts:                          []Host{},
	}
	if jsonKind(raw.Hosts) == '[' {
		if err := json.Unmarshal(raw.Hosts, &g.Hosts); err != nil {
			return Group{}, &StructuralError{Path: path, Msg: "hosts: " + err.Error()}
		}
		if g.Hosts == nil {
			g.Hosts = []Host{}
		}
	}
	if jsonKind(raw.Snippets) == '[' {
		if err := json.Unmarshal(raw.Snippets, &g.Snippets); err != nil {
			return Group{}, &StructuralError{Path: path, Msg: "snippets: " + err.Error()}
		}
	}
	if jsonKind(raw.Groups) == '[' {
		nested, err := decodeGroups(raw.Groups, path)
		if err != nil {
			return Group{}, err
		}
		g.Groups = nested
	}
	return g, nil
}

// jsonKind returns the first significant byte of a JSON value, or 0 if empty.
func jsonKind(data []byte) byte {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

// EncodeConfig renders cfg the way it is persisted: 2-space indent and a
// trailing newline.
func EncodeConfig(cfg *Config) ([]byte, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	out := *cfg
	if out.Groups == nil {
		out.Groups = []Group{}
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(payload, '\n'), nil
}

// Clone returns a deep copy of cfg. Origins are preserved.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{Groups: cloneGroups(c.Groups)}
	if out.Groups == nil {
		out.Groups = []Group{}
	}
	return out
}

func cloneGroups(in []Group) []Group {
	if in == nil {
		return nil
	}
	out := make([]Group, len(in))
	for i, g := range in {
		out[i] = g.clone()
	}
	return out
}

func (g Group) clone() Group {
	out := g
	out.Snippets = cloneSnippets(g.Snippets)
	if g.Hosts != nil {
		out.Hosts = make([]Host, len(g.Hosts))
		for i, h := range g.Hosts {
			out.Hosts[i] = h.clone()
		}
	}
	out.Groups = cloneGroups(g.Groups)
	if g.RemoteHosts != nil {
		rh := *g.RemoteHosts
		if rh.BasicAuth != nil {
			ba := *rh.BasicAuth
			rh.BasicAuth = &ba
		}
		out.RemoteHosts = &rh
	}
	return out
}

func (h Host) clone() Host {
	out := h
	out.Snippets = cloneSnippets(h.Snippets)
	return out
}

func cloneSnippets(in []Snippet) []Snippet {
	if in == nil {
		return nil
	}
	return append([]Snippet(nil), in...)
}

// expandPath expands environment variables and a leading "~" in a path.
// If the input is empty, returns "".
func expandPath(p string) string {
	if p == "" {
		return ""
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		home, _ := os.UserHomeDir()
		if home != "" {
			if p == "~" {
				p = home
			} else if strings.HasPrefix(p, "~/") {
				p = filepath.Join(home, p[2:])
			}
			// "~user" is left alone.
		}
	}
	return p
}
