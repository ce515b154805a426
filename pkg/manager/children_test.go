package manager

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeSource serves canned fragments keyed by address.
type fakeSource struct {
	responses map[string]RemoteResponse
	errs      map[string]error
	stale     map[string]error
	calls     map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		responses: map[string]RemoteResponse{},
		errs:      map[string]error{},
		stale:     map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeSource) Fetch(_ context.Context, cfg RemoteHostsConfig) (RemoteResult, error) {
	f.calls[cfg.Address]++
	if err := f.errs[cfg.Address]; err != nil {
		return RemoteResult{}, err
	}
	res := RemoteResult{Response: f.responses[cfg.Address]}
	if w := f.stale[cfg.Address]; w != nil {
		res.Stale = true
		res.Warning = w
	}
	return res, nil
}

func remoteTree() *Config {
	return &Config{Groups: []Group{
		{
			Name:        "R",
			DefaultUser: "ops",
			Hosts:       []Host{{HostName: "local1"}, {HostName: "local2"}},
			Groups:      []Group{{Name: "sub", Hosts: []Host{}}},
			RemoteHosts: &RemoteHostsConfig{Address: "http://inv"},
		},
	}}
}

func TestListChildren_TopLevel(t *testing.T) {
	l := ListChildren(context.Background(), sampleTree(), GroupPath{}, nil)
	if len(l.Children) != 2 {
		t.Fatalf("expected 2 top-level groups, got %d", len(l.Children))
	}
	for i, c := range l.Children {
		if c.Kind != ChildGroup || c.Index != i || c.Path.String() != (GroupPath{i}).String() {
			t.Fatalf("unexpected child %d: %+v", i, c)
		}
	}
}

func TestListChildren_RemoteEntriesAreOffset(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{
		Hosts:  []Host{{HostName: "r1"}, {HostName: "r2"}, {HostName: "r3"}},
		Groups: []Group{{Name: "rg", Hosts: []Host{{HostName: "deep"}}}},
	}
	l := ListChildren(context.Background(), remoteTree(), GroupPath{0}, src)

	var hosts, groups []Child
	for _, c := range l.Children {
		if c.Kind == ChildHost {
			hosts = append(hosts, c)
		} else {
			groups = append(groups, c)
		}
	}
	if len(hosts) != 5 || len(groups) != 2 {
		t.Fatalf("expected 5 hosts and 2 groups, got %d and %d", len(hosts), len(groups))
	}
	for i, h := range hosts {
		if h.Index != i {
			t.Fatalf("host %d has index %d", i, h.Index)
		}
		if h.Remote != (i >= 2) {
			t.Fatalf("host %d: unexpected remote flag %v", i, h.Remote)
		}
	}
	if hosts[2].Host.HostName != "r1" {
		t.Fatalf("expected first remote host at index 2, got %s", hosts[2].Host.HostName)
	}
	if groups[1].Path.String() != "0.1" || !groups[1].Remote || groups[1].Group.Name != "rg" {
		t.Fatalf("unexpected remote group entry: %+v", groups[1])
	}
	if len(l.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", l.Warnings)
	}
}

func TestListChildren_FailedFetchAddsOnePlaceholder(t *testing.T) {
	src := newFakeSource()
	src.errs["http://inv"] = errors.New("HTTP 500: Internal Server Error")
	l := ListChildren(context.Background(), remoteTree(), GroupPath{0}, src)

	if len(l.Children) != 4 {
		t.Fatalf("expected 2 local hosts, 1 subgroup and 1 placeholder, got %d", len(l.Children))
	}
	var placeholders int
	for _, c := range l.Children {
		if c.Err != nil {
			placeholders++
			if c.Host.Name != ErrorEntryName || c.Host.HostName != "HTTP 500: Internal Server Error" || c.Index != -1 {
				t.Fatalf("unexpected placeholder: %+v", c)
			}
		}
	}
	if placeholders != 1 {
		t.Fatalf("expected exactly one placeholder, got %d", placeholders)
	}
	if l.Children[0].Host.HostName != "local1" || l.Children[1].Host.HostName != "local2" {
		t.Fatalf("local hosts missing: %+v", l.Children[:2])
	}
}

func TestListChildren_StaleFetchWarns(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{Hosts: []Host{{HostName: "cached"}}}
	src.stale["http://inv"] = errors.New("connection refused")
	l := ListChildren(context.Background(), remoteTree(), GroupPath{0}, src)

	if len(l.Warnings) != 1 || !strings.Contains(l.Warnings[0], "connection refused") {
		t.Fatalf("expected a stale warning, got %v", l.Warnings)
	}
	found := false
	for _, c := range l.Children {
		if c.Host.HostName == "cached" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cached host in listing")
	}
}

func TestListChildren_IntoRemoteGroup(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{
		Groups: []Group{{Name: "rg", DefaultPort: 2022, Hosts: []Host{{HostName: "deep"}}}},
	}
	cfg := remoteTree()
	l := ListChildren(context.Background(), cfg, GroupPath{0, 1}, src)
	if len(l.Children) != 1 || l.Children[0].Host.HostName != "deep" {
		t.Fatalf("expected remote group's host, got %+v", l.Children)
	}

	chain := GroupChainAugmented(context.Background(), cfg, GroupPath{0, 1}, src)
	if len(chain) != 2 || chain[0].Name != "rg" || chain[1].Name != "R" {
		t.Fatalf("unexpected augmented chain: %#v", chain)
	}
	s := ResolveHostSettings(l.Children[0].Host, chain)
	if s.User != "ops" || s.Port != 2022 {
		t.Fatalf("remote host did not inherit through the chain: %+v", s)
	}
}

func TestListChildren_NilSourceSkipsRemote(t *testing.T) {
	l := ListChildren(context.Background(), remoteTree(), GroupPath{0}, nil)
	if len(l.Children) != 3 {
		t.Fatalf("expected local children only, got %d", len(l.Children))
	}
	if l := ListChildren(context.Background(), remoteTree(), GroupPath{4}, nil); len(l.Children) != 0 {
		t.Fatalf("expected nothing for an unknown path")
	}
}

func TestResolveHostRef_RemoteIndex(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{Hosts: []Host{{HostName: "r1", Snippets: []Snippet{{Name: "x"}}}}}
	cfg := remoteTree()

	ref, ok := ResolveHostRef(context.Background(), cfg, GroupPath{0}, 2, src)
	if !ok || ref.Host.HostName != "r1" || ref.Index != 2 {
		t.Fatalf("expected r1 at index 2, got %+v %v", ref, ok)
	}
	if len(ref.Chain) != 1 || ref.Chain[0].Name != "R" {
		t.Fatalf("unexpected chain %#v", ref.Chain)
	}
	if ref, ok := ResolveHostRef(context.Background(), cfg, GroupPath{0}, 1, src); !ok || ref.Host.HostName != "local2" {
		t.Fatalf("expected local2 at index 1, got %+v", ref)
	}
	if _, ok := ResolveHostRef(context.Background(), cfg, GroupPath{0}, 3, src); ok {
		t.Fatalf("expected index 3 to be out of range")
	}
	if _, ok := ResolveHostRef(context.Background(), cfg, GroupPath{0}, -1, src); ok {
		t.Fatalf("expected negative index to fail")
	}
}

func TestLookupGroup(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{Groups: []Group{{Name: "rg"}}}
	g, ok := LookupGroup(context.Background(), remoteTree(), GroupPath{0, 1}, src)
	if !ok || g.Name != "rg" {
		t.Fatalf("expected remote group rg, got %+v %v", g, ok)
	}
	if _, ok := LookupGroup(context.Background(), remoteTree(), GroupPath{0, 2}, src); ok {
		t.Fatalf("expected missing group")
	}
}

func TestWalk_VisitsAugmentedTree(t *testing.T) {
	src := newFakeSource()
	src.responses["http://inv"] = RemoteResponse{
		Hosts:  []Host{{HostName: "r1"}},
		Groups: []Group{{Name: "rg", Hosts: []Host{{HostName: "deep"}}}},
	}
	var got []string
	warnings, err := Walk(context.Background(), remoteTree(), src, func(v HostVisit) error {
		got = append(got, v.Host.HostName+"@"+v.Path.String())
		return nil
	})
	if err != nil || len(warnings) != 0 {
		t.Fatalf("Walk: %v %v", warnings, err)
	}
	want := "local1@0,local2@0,r1@0,deep@0.1"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %s want %s", strings.Join(got, ","), want)
	}
}

func TestWalk_DoesNotReexpandSameFragment(t *testing.T) {
	src := newFakeSource()
	// The fragment contains a group pointing back at itself.
	src.responses["http://inv"] = RemoteResponse{
		Groups: []Group{{Name: "loop", RemoteHosts: &RemoteHostsConfig{Address: "http://inv"}, Hosts: []Host{{HostName: "x"}}}},
	}
	var n int
	_, err := Walk(context.Background(), remoteTree(), src, func(HostVisit) error { n++; return nil })
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 hosts, got %d", n)
	}
	if src.calls["http://inv"] != 1 {
		t.Fatalf("expected one fetch, got %d", src.calls["http://inv"])
	}
}

func TestWalk_FailuresBecomeWarnings(t *testing.T) {
	src := newFakeSource()
	src.errs["http://inv"] = errors.New("request timeout")
	var n int
	warnings, err := Walk(context.Background(), remoteTree(), src, func(HostVisit) error { n++; return nil })
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if n != 2 || len(warnings) != 1 || !strings.HasPrefix(warnings[0], "R: ") {
		t.Fatalf("expected 2 local hosts and one warning, got %d %v", n, warnings)
	}
}

func TestWalk_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	var n int
	_, err := Walk(context.Background(), sampleTree(), nil, func(HostVisit) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("expected walk to stop after one visit, got %d %v", n, err)
	}
}
