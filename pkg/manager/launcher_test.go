package manager

import (
	"context"
	"testing"
	"time"
)

func TestLauncher_LaunchAndLookup(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	l := NewLauncher()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	cfg := sampleTree()
	ref, _ := HostAt(cfg, GroupPath{0, 0}, 0)
	s1 := l.Launch(ref)
	if s1.ID != "s1" || s1.Command != "ssh admin@h2 -p 2222 -i /home/tester/.ssh/c" {
		t.Fatalf("unexpected session %+v", s1)
	}
	s2, ok := l.LaunchAt(context.Background(), cfg, GroupPath{1}, 0, nil)
	if !ok || s2.ID != "s2" || s2.HostName != "q1" {
		t.Fatalf("unexpected session %+v %v", s2, ok)
	}
	if _, ok := l.LaunchAt(context.Background(), cfg, GroupPath{1}, 4, nil); ok {
		t.Fatalf("expected launch at a missing index to fail")
	}

	all := l.Sessions()
	if len(all) != 2 || all[0].ID != "s1" || all[1].ID != "s2" {
		t.Fatalf("unexpected sessions %+v", all)
	}
	if got, ok := l.Session("s2"); !ok || got.HostName != "q1" {
		t.Fatalf("Session(s2) = %+v %v", got, ok)
	}
	if !l.Close("s1") || l.Close("s1") {
		t.Fatalf("expected Close to succeed once")
	}
	if _, ok := l.Session("s1"); ok {
		t.Fatalf("closed session still registered")
	}
}

func TestLauncher_SnippetsFollowHost(t *testing.T) {
	l := NewLauncher()
	cfg := sampleTree()
	ref, _ := HostAt(cfg, GroupPath{0, 0}, 0)
	s := l.Launch(ref)

	snips, ok := l.Snippets(context.Background(), cfg, nil, s.ID)
	if !ok || len(snips) != 3 || snips[0].Name != "own" {
		t.Fatalf("unexpected snippets %+v %v", snips, ok)
	}

	// Shift the host to a new position; lookup falls back to hostName.
	c := &cfg.Groups[0].Groups[0]
	c.Hosts = append([]Host{{HostName: "other"}}, c.Hosts...)
	snips, ok = l.Snippets(context.Background(), cfg, nil, s.ID)
	if !ok || len(snips) != 3 {
		t.Fatalf("expected snippets after move, got %+v %v", snips, ok)
	}

	c.Hosts = c.Hosts[:1]
	if _, ok := l.Snippets(context.Background(), cfg, nil, s.ID); ok {
		t.Fatalf("expected removed host to have no snippets")
	}
	if _, ok := l.Snippets(context.Background(), cfg, nil, "nope"); ok {
		t.Fatalf("expected unknown session to fail")
	}
}
