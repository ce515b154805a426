package manager

import (
	"context"
	"fmt"
)

// ErrorEntryName is the display name of the placeholder host that stands in
// for a remote fragment that could not be loaded.
const ErrorEntryName = "Error loading remote hosts"

// RemoteResult is what a RemoteSource returns for one fragment. Stale is set
// when the live fetch failed and a cached response was served instead; Warning
// then carries the fetch error.
type RemoteResult struct {
	Response RemoteResponse
	Stale    bool
	Warning  error
}

// RemoteSource fetches remote fragments. pkg/remote provides the caching
// HTTP implementation.
type RemoteSource interface {
	Fetch(ctx context.Context, cfg RemoteHostsConfig) (RemoteResult, error)
}

// ChildKind distinguishes group and host entries of a listing.
type ChildKind int

const (
	ChildGroup ChildKind = iota
	ChildHost
)

// Child is one entry of a group's augmented children.
type Child struct {
	Kind ChildKind

	// Group is set for ChildGroup entries, Host for ChildHost entries.
	Group Group
	Host  Host

	// Path is the group's own path for ChildGroup, and the owning group's
	// path for ChildHost.
	Path GroupPath

	// Index is the position among siblings of the same kind. Remote entries
	// are offset past all local ones. The error placeholder has Index -1.
	Index int

	Remote bool

	// Err is set only on the synthetic error placeholder.
	Err error
}

// Listing is the result of ListChildren.
type Listing struct {
	Children []Child
	Warnings []string
}

type expansion struct {
	remote  RemoteResponse
	err     error
	warning string
}

// expand fetches g's remote fragment, if any. src may be nil.
func expand(ctx context.Context, g *Group, src RemoteSource) expansion {
	if g.RemoteHosts == nil || src == nil || g.RemoteHosts.Address == "" {
		return expansion{}
	}
	res, err := src.Fetch(ctx, *g.RemoteHosts)
	if err != nil {
		return expansion{err: err}
	}
	ex := expansion{remote: res.Response}
	if res.Stale {
		ex.warning = fmt.Sprintf("%s: using cached remote data: %v", g.Name, res.Warning)
	}
	return ex
}

// augmentedGroups returns g's local subgroups followed by its remote ones.
func augmentedGroups(ctx context.Context, g *Group, src RemoteSource) []Group {
	ex := expand(ctx, g, src)
	if len(ex.remote.Groups) == 0 {
		return g.Groups
	}
	out := make([]Group, 0, len(g.Groups)+len(ex.remote.Groups))
	out = append(out, g.Groups...)
	return append(out, ex.remote.Groups...)
}

// resolveAugmented walks path through the augmented tree and returns the
// chain from the root down to the target (outermost first).
func resolveAugmented(ctx context.Context, cfg *Config, path GroupPath, src RemoteSource) ([]Group, bool) {
	if cfg == nil || len(path) == 0 {
		return nil, false
	}
	chain := make([]Group, 0, len(path))
	current := cfg.Groups
	for depth, idx := range path {
		if idx < 0 || idx >= len(current) {
			return nil, false
		}
		g := current[idx]
		chain = append(chain, g)
		if depth < len(path)-1 {
			current = augmentedGroups(ctx, &g, src)
		}
	}
	return chain, true
}

// GroupChainAugmented is GroupChain over the augmented tree, so that paths
// handed out by ListChildren for remote groups resolve too.
func GroupChainAugmented(ctx context.Context, cfg *Config, path GroupPath, src RemoteSource) []Group {
	chain, ok := resolveAugmented(ctx, cfg, path, src)
	if !ok {
		return GroupChain(cfg, path)
	}
	reverseGroups(chain)
	return chain
}

// ListChildren enumerates the children of the group at path. The empty path
// lists the top-level groups.
//
// Local hosts and subgroups come first. If the group has a remote fragment,
// its hosts and groups follow, indexed past the local ones. A failed fetch
// adds a single placeholder entry; local entries are always listed.
func ListChildren(ctx context.Context, cfg *Config, path GroupPath, src RemoteSource) Listing {
	var out Listing
	if cfg == nil {
		return out
	}
	if len(path) == 0 {
		for i, g := range cfg.Groups {
			out.Children = append(out.Children, Child{Kind: ChildGroup, Group: g, Path: path.Child(i), Index: i})
		}
		return out
	}

	chain, ok := resolveAugmented(ctx, cfg, path, src)
	if !ok {
		return out
	}
	g := chain[len(chain)-1]
	owner := append(GroupPath(nil), path...)

	for i, h := range g.Hosts {
		out.Children = append(out.Children, Child{Kind: ChildHost, Host: h, Path: owner, Index: i})
	}
	for j, sg := range g.Groups {
		out.Children = append(out.Children, Child{Kind: ChildGroup, Group: sg, Path: path.Child(j), Index: j})
	}

	ex := expand(ctx, &g, src)
	for i, h := range ex.remote.Hosts {
		out.Children = append(out.Children, Child{Kind: ChildHost, Host: h, Path: owner, Index: len(g.Hosts) + i, Remote: true})
	}
	for j, sg := range ex.remote.Groups {
		idx := len(g.Groups) + j
		out.Children = append(out.Children, Child{Kind: ChildGroup, Group: sg, Path: path.Child(idx), Index: idx, Remote: true})
	}
	if ex.err != nil {
		out.Children = append(out.Children, Child{
			Kind:   ChildHost,
			Host:   Host{Name: ErrorEntryName, HostName: ex.err.Error()},
			Path:   owner,
			Index:  -1,
			Remote: true,
			Err:    ex.err,
		})
	}
	if ex.warning != "" {
		out.Warnings = append(out.Warnings, ex.warning)
	}
	return out
}

// HostVisit is passed to Walk for every host in the augmented tree.
type HostVisit struct {
	Host   Host
	Path   GroupPath
	Index  int
	Chain  []Group
	Remote bool
}

// Walk visits every host of the augmented tree depth-first: a group's local
// hosts, then its remote hosts, then local and remote subgroups. Remote
// failures and stale fallbacks are returned as warnings. A remote fragment is
// not expanded again below itself. Returning an error from fn stops the walk.
func Walk(ctx context.Context, cfg *Config, src RemoteSource, fn func(HostVisit) error) ([]string, error) {
	if cfg == nil {
		return nil, nil
	}
	w := &walker{ctx: ctx, src: src, fn: fn, active: map[string]bool{}}
	for i := range cfg.Groups {
		if err := w.visit(&cfg.Groups[i], GroupPath{i}, nil, false); err != nil {
			return w.warnings, err
		}
	}
	return w.warnings, nil
}

type walker struct {
	ctx      context.Context
	src      RemoteSource
	fn       func(HostVisit) error
	active   map[string]bool
	warnings []string
}

func remoteKey(rh *RemoteHostsConfig) string {
	user := ""
	if rh.BasicAuth != nil {
		user = rh.BasicAuth.Username
	}
	return rh.Address + "\x00" + user
}

func (w *walker) visit(g *Group, path GroupPath, parents []Group, remote bool) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	outer := append(append([]Group(nil), parents...), *g)
	chain := append([]Group(nil), outer...)
	reverseGroups(chain)

	for i, h := range g.Hosts {
		if err := w.fn(HostVisit{Host: h, Path: path, Index: i, Chain: chain, Remote: remote}); err != nil {
			return err
		}
	}

	var ex expansion
	key := ""
	if g.RemoteHosts != nil {
		key = remoteKey(g.RemoteHosts)
		if !w.active[key] {
			ex = expand(w.ctx, g, w.src)
		}
	}
	if ex.err != nil {
		w.warnings = append(w.warnings, fmt.Sprintf("%s: %v", g.Name, ex.err))
	}
	if ex.warning != "" {
		w.warnings = append(w.warnings, ex.warning)
	}
	for i, h := range ex.remote.Hosts {
		v := HostVisit{Host: h, Path: path, Index: len(g.Hosts) + i, Chain: chain, Remote: true}
		if err := w.fn(v); err != nil {
			return err
		}
	}

	for j := range g.Groups {
		if err := w.visit(&g.Groups[j], path.Child(j), outer, remote); err != nil {
			return err
		}
	}
	if len(ex.remote.Groups) == 0 {
		return nil
	}
	w.active[key] = true
	defer delete(w.active, key)
	for j := range ex.remote.Groups {
		if err := w.visit(&ex.remote.Groups[j], path.Child(len(g.Groups)+j), outer, true); err != nil {
			return err
		}
	}
	return nil
}

// ResolveHostRef returns the host at index within the group at path, where
// index may point past the local hosts into the remote fragment.
func ResolveHostRef(ctx context.Context, cfg *Config, path GroupPath, index int, src RemoteSource) (HostRef, bool) {
	chain, ok := resolveAugmented(ctx, cfg, path, src)
	if !ok || index < 0 {
		return HostRef{}, false
	}
	g := chain[len(chain)-1]
	reverseGroups(chain)
	ref := HostRef{Path: append(GroupPath(nil), path...), Index: index, Chain: chain}
	if index < len(g.Hosts) {
		ref.Host = g.Hosts[index]
		return ref, true
	}
	ex := expand(ctx, &g, src)
	i := index - len(g.Hosts)
	if i >= len(ex.remote.Hosts) {
		return HostRef{}, false
	}
	ref.Host = ex.remote.Hosts[i]
	return ref, true
}

// LookupGroup returns the group at path in the augmented tree.
func LookupGroup(ctx context.Context, cfg *Config, path GroupPath, src RemoteSource) (Group, bool) {
	chain, ok := resolveAugmented(ctx, cfg, path, src)
	if !ok {
		return Group{}, false
	}
	return chain[len(chain)-1], true
}
