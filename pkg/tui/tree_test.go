package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"ssh-control/pkg/manager"
)

type stubSource struct {
	resp manager.RemoteResponse
	err  error
}

func (s stubSource) Fetch(context.Context, manager.RemoteHostsConfig) (manager.RemoteResult, error) {
	return manager.RemoteResult{Response: s.resp}, s.err
}

func treeConfig() *manager.Config {
	return &manager.Config{Groups: []manager.Group{
		{
			Name:        "prod",
			DefaultUser: "deploy",
			DefaultPort: 2222,
			Hosts:       []manager.Host{{HostName: "10.0.0.5", Name: "web1"}},
			Groups: []manager.Group{
				{Name: "db", Hosts: []manager.Host{{HostName: "10.0.1.1", Name: "pg", User: "postgres"}}},
			},
		},
		{Name: "empty", Hosts: []manager.Host{}},
	}}
}

func TestRenderTree(t *testing.T) {
	var buf bytes.Buffer
	_, err := RenderTree(context.Background(), &buf, treeConfig(), nil, nil, TreeOptions{Theme: NoTheme()})
	if err != nil {
		t.Fatalf("RenderTree: %v", err)
	}
	want := strings.Join([]string{
		"prod",
		"├── web1 deploy@10.0.0.5:2222",
		"└── db",
		"    └── pg postgres@10.0.1.1:2222",
		"empty",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRenderTree_PathsAndDepth(t *testing.T) {
	var buf bytes.Buffer
	_, err := RenderTree(context.Background(), &buf, treeConfig(), nil, nil, TreeOptions{Theme: NoTheme(), ShowPaths: true, MaxDepth: 1})
	if err != nil {
		t.Fatalf("RenderTree: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[0] prod") || !strings.Contains(out, "[0#0] web1") || !strings.Contains(out, "[0.0] db") {
		t.Fatalf("missing path prefixes:\n%s", out)
	}
	if strings.Contains(out, "pg") {
		t.Fatalf("MaxDepth 1 should not descend into db:\n%s", out)
	}
}

func TestRenderTree_RemoteEntries(t *testing.T) {
	cfg := treeConfig()
	cfg.Groups[1].RemoteHosts = &manager.RemoteHostsConfig{Address: "http://inv"}

	var buf bytes.Buffer
	src := stubSource{resp: manager.RemoteResponse{
		Hosts:  []manager.Host{{HostName: "10.9.0.1"}},
		Groups: []manager.Group{{Name: "edge", Hosts: []manager.Host{}}},
	}}
	if _, err := RenderTree(context.Background(), &buf, cfg, manager.GroupPath{1}, src, TreeOptions{}); err != nil {
		t.Fatalf("RenderTree: %v", err)
	}
	want := "├── 10.9.0.1 root@10.9.0.1:22 (remote)\n└── edge (remote)\n"
	if buf.String() != want {
		t.Fatalf("got:\n%q\nwant:\n%q", buf.String(), want)
	}

	buf.Reset()
	failing := stubSource{err: errors.New("HTTP 503: Service Unavailable")}
	if _, err := RenderTree(context.Background(), &buf, cfg, manager.GroupPath{1}, failing, TreeOptions{}); err != nil {
		t.Fatalf("RenderTree: %v", err)
	}
	if buf.String() != "└── Error loading remote hosts: HTTP 503: Service Unavailable\n" {
		t.Fatalf("unexpected error rendering %q", buf.String())
	}
}

func TestHostLabel(t *testing.T) {
	s := manager.ResolvedSettings{User: "root", Port: 22}
	if got := HostLabel(manager.Host{HostName: "h", Name: "web"}, s); got != "web (root@h:22)" {
		t.Fatalf("got %q", got)
	}
	if got := HostLabel(manager.Host{HostName: "h", Name: "h"}, s); got != "root@h:22" {
		t.Fatalf("got %q", got)
	}
	if got := HostLabel(manager.Host{HostName: "h"}, s); got != "root@h:22" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadTheme_Env(t *testing.T) {
	t.Setenv(ThemeEnv, "none")
	if LoadTheme(nil).Enabled {
		t.Fatalf("expected no theme")
	}
	t.Setenv(ThemeEnv, "mocha")
	if !LoadTheme(nil).Enabled {
		t.Fatalf("expected mocha theme")
	}
	t.Setenv(ThemeEnv, "")
	if LoadTheme(nil).Enabled {
		t.Fatalf("expected no theme without a terminal")
	}
	if got := NoTheme().GroupText("x"); got != "x" {
		t.Fatalf("disabled theme must not style text, got %q", got)
	}
}
