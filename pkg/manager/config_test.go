package manager

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeConfig_NonObjectRootYieldsEmptyConfig(t *testing.T) {
	for _, in := range []string{`[]`, `"groups"`, `42`, `null`} {
		cfg, err := DecodeConfig([]byte(in))
		if err != nil {
			t.Fatalf("DecodeConfig(%s): unexpected error: %v", in, err)
		}
		if cfg == nil || cfg.Groups == nil || len(cfg.Groups) != 0 {
			t.Fatalf("DecodeConfig(%s): expected empty non-nil groups, got %#v", in, cfg)
		}
	}
}

func TestDecodeConfig_InvalidJSON(t *testing.T) {
	_, err := DecodeConfig([]byte(`{"groups": [`))
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("expected ErrInvalidJSON, got %v", err)
	}
}

func TestDecodeConfig_GroupsNotAListYieldsEmptyConfig(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"groups": {"name": "x"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(cfg.Groups))
	}
}

func TestDecodeConfig_MissingNameIsStructuralError(t *testing.T) {
	tests := []struct {
		name string
		in   string
		path string
	}{
		{"top level", `{"groups":[{"hosts":[]}]}`, ""},
		{"empty name", `{"groups":[{"name":"a"},{"name":""}]}`, ""},
		{"nested", `{"groups":[{"name":"a","groups":[{"name":"b"},{"name":7}]}]}`, "0.1"},
		{"not an object", `{"groups":["a"]}`, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig([]byte(tt.in))
			var se *StructuralError
			if !errors.As(err, &se) {
				t.Fatalf("expected StructuralError, got %v", err)
			}
			if tt.path != "" && se.Path.String() != tt.path {
				t.Fatalf("expected error at %s, got %s", tt.path, se.Path)
			}
			if !strings.HasPrefix(err.Error(), "invalid group structure at [") {
				t.Fatalf("unexpected message: %q", err.Error())
			}
		})
	}
}

func TestDecodeConfig_NormalizesLists(t *testing.T) {
	in := `{"groups":[
		{"name":"a","hosts":"nope","groups":"nope","snippets":5},
		{"name":"b"},
		{"name":"c","hosts":[{"hostName":"h1","name":"one"}],"groups":[{"name":"d"}]}
	]}`
	cfg, err := DecodeConfig([]byte(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(cfg.Groups))
	}
	a := cfg.Groups[0]
	if a.Hosts == nil || len(a.Hosts) != 0 {
		t.Fatalf("expected empty hosts for a, got %#v", a.Hosts)
	}
	if a.Groups != nil || a.Snippets != nil {
		t.Fatalf("expected absent groups/snippets for a, got %#v %#v", a.Groups, a.Snippets)
	}
	if cfg.Groups[1].Hosts == nil {
		t.Fatalf("expected missing hosts to become an empty list")
	}
	c := cfg.Groups[2]
	if len(c.Hosts) != 1 || c.Hosts[0].HostName != "h1" || len(c.Groups) != 1 || c.Groups[0].Name != "d" {
		t.Fatalf("unexpected group c: %#v", c)
	}
	if c.Groups[0].Hosts == nil {
		t.Fatalf("expected nested group hosts to be normalized")
	}
}

func TestEncodeConfig_IndentAndTrailingNewline(t *testing.T) {
	data, err := EncodeConfig(&Config{Groups: []Group{{Name: "a", Hosts: []Host{}}}})
	if err != nil {
		t.Fatalf("EncodeConfig: %v", err)
	}
	s := string(data)
	if !strings.HasSuffix(s, "}\n") {
		t.Fatalf("expected trailing newline, got %q", s)
	}
	if !strings.Contains(s, "\n  \"groups\": [\n    {\n      \"name\": \"a\"") {
		t.Fatalf("expected 2-space indentation, got:\n%s", s)
	}

	empty, err := EncodeConfig(nil)
	if err != nil {
		t.Fatalf("EncodeConfig(nil): %v", err)
	}
	if string(empty) != "{\n  \"groups\": []\n}\n" {
		t.Fatalf("unexpected empty encoding %q", empty)
	}
}

func TestConfigClone_IsDeep(t *testing.T) {
	cfg := &Config{Groups: []Group{{
		Name:        "a",
		Hosts:       []Host{{HostName: "h", Snippets: []Snippet{{Name: "s", Command: "c"}}}},
		Groups:      []Group{{Name: "b", Hosts: []Host{}}},
		RemoteHosts: &RemoteHostsConfig{Address: "http://x", BasicAuth: &BasicAuth{Username: "u"}},
	}}}
	cp := cfg.Clone()
	cp.Groups[0].Hosts[0].Snippets[0].Name = "changed"
	cp.Groups[0].Groups[0].Name = "changed"
	cp.Groups[0].RemoteHosts.BasicAuth.Username = "changed"

	if cfg.Groups[0].Hosts[0].Snippets[0].Name != "s" || cfg.Groups[0].Groups[0].Name != "b" || cfg.Groups[0].RemoteHosts.BasicAuth.Username != "u" {
		t.Fatalf("clone shares memory with the original: %#v", cfg.Groups[0])
	}
}

func TestParseGroupPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantLen int
		wantErr bool
	}{
		{in: "", want: "", wantLen: 0},
		{in: ".", want: "", wantLen: 0},
		{in: "0", want: "0", wantLen: 1},
		{in: " 0.2.1 ", want: "0.2.1", wantLen: 3},
		{in: "0.-1", wantErr: true},
		{in: "a.b", wantErr: true},
		{in: "0..1", wantErr: true},
	}
	for _, tt := range tests {
		p, err := ParseGroupPath(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseGroupPath(%q): expected error, got %v", tt.in, p)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseGroupPath(%q): %v", tt.in, err)
		}
		if p.String() != tt.want || len(p) != tt.wantLen {
			t.Fatalf("ParseGroupPath(%q) = %v, want %q", tt.in, p, tt.want)
		}
	}
}

func TestGroupPathChildDoesNotAlias(t *testing.T) {
	base := make(GroupPath, 1, 4)
	a := base.Child(1)
	b := base.Child(2)
	if a.String() != "0.1" || b.String() != "0.2" {
		t.Fatalf("Child aliased its receiver: %v %v", a, b)
	}
}

func TestFindGroupByPath(t *testing.T) {
	cfg := &Config{Groups: []Group{
		{Name: "a", Groups: []Group{{Name: "a0"}, {Name: "a1"}}},
	}}
	if _, ok := FindGroupByPath(cfg, GroupPath{}); ok {
		t.Fatalf("expected empty path to resolve to nothing")
	}
	if _, ok := FindGroupByPath(cfg, GroupPath{0, 2}); ok {
		t.Fatalf("expected out-of-range path to fail")
	}
	g, ok := FindGroupByPath(cfg, GroupPath{0, 1})
	if !ok || g.Name != "a1" {
		t.Fatalf("expected a1, got %v %v", g, ok)
	}
	g.Name = "renamed"
	if cfg.Groups[0].Groups[1].Name != "renamed" {
		t.Fatalf("expected FindGroupByPath to alias cfg")
	}
}
