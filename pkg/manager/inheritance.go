package manager

import "strings"

const (
	fallbackUser = "root"
	fallbackPort = 22
)

// ResolvedSettings captures the effective connection parameters of a host
// after applying its group chain.
type ResolvedSettings struct {
	User                    string     `json:"user"`
	Port                    int        `json:"port"`
	IdentityFile            string     `json:"identityFile,omitempty"`
	PreferredAuthentication AuthMethod `json:"preferredAuthentication,omitempty"`
}

// GroupChain returns every group from the root down to the group at path,
// innermost first: index 0 is the direct parent, the last element is the
// top-level group. Collection stops at the first out-of-range index.
// The empty path yields an empty chain.
func GroupChain(cfg *Config, path GroupPath) []Group {
	if cfg == nil || len(path) == 0 {
		return nil
	}
	chain := make([]Group, 0, len(path))
	current := cfg.Groups
	for _, idx := range path {
		if idx < 0 || idx >= len(current) {
			break
		}
		g := current[idx]
		chain = append(chain, g)
		current = g.Groups
	}
	reverseGroups(chain)
	return chain
}

func reverseGroups(gs []Group) {
	for i, j := 0, len(gs)-1; i < j; i, j = i+1, j-1 {
		gs[i], gs[j] = gs[j], gs[i]
	}
}

// ResolveHostSettings fills every unset field of host from the first group in
// chain (innermost to outermost) that defines the matching default.
//
// Rules:
//   - user: host.user > nearest defaultUser > "root"
//   - port: host.port > nearest defaultPort > 22
//   - identityFile: host.identityFile > nearest defaultIdentityFile > unset
//   - preferredAuthentication: host value > nearest default > unset
func ResolveHostSettings(host Host, chain []Group) ResolvedSettings {
	out := ResolvedSettings{
		User:                    host.User,
		Port:                    host.Port,
		IdentityFile:            host.IdentityFile,
		PreferredAuthentication: host.PreferredAuthentication,
	}
	for _, g := range chain {
		if out.User == "" && g.DefaultUser != "" {
			out.User = g.DefaultUser
		}
		if out.Port <= 0 && g.DefaultPort > 0 {
			out.Port = g.DefaultPort
		}
		if out.IdentityFile == "" && g.DefaultIdentityFile != "" {
			out.IdentityFile = g.DefaultIdentityFile
		}
		if out.PreferredAuthentication == "" && g.DefaultPreferredAuthentication != "" {
			out.PreferredAuthentication = g.DefaultPreferredAuthentication
		}
	}
	if out.User == "" {
		out.User = fallbackUser
	}
	if out.Port <= 0 {
		out.Port = fallbackPort
	}
	return out
}

// AggregateSnippets returns the host's own snippets followed by every chain
// group's snippets, innermost first. Duplicate names are kept.
func AggregateSnippets(host Host, chain []Group) []Snippet {
	var out []Snippet
	out = append(out, host.Snippets...)
	for _, g := range chain {
		out = append(out, g.Snippets...)
	}
	return out
}

// HostRef locates a host inside the tree.
type HostRef struct {
	Host  Host
	Path  GroupPath
	Index int
	Chain []Group
}

// FindHost searches the tree depth-first (a group's hosts before its
// subgroups) for the first host whose hostName or name equals query.
func FindHost(cfg *Config, query string) (HostRef, bool) {
	query = strings.TrimSpace(query)
	if cfg == nil || query == "" {
		return HostRef{}, false
	}
	ref, ok := findHostIn(cfg.Groups, GroupPath{}, query)
	if !ok {
		return HostRef{}, false
	}
	ref.Chain = GroupChain(cfg, ref.Path)
	return ref, true
}

func findHostIn(groups []Group, parent GroupPath, query string) (HostRef, bool) {
	for gi, g := range groups {
		path := parent.Child(gi)
		for hi, h := range g.Hosts {
			if h.HostName == query || h.Name == query {
				return HostRef{Host: h, Path: path, Index: hi}, true
			}
		}
		if ref, ok := findHostIn(g.Groups, path, query); ok {
			return ref, true
		}
	}
	return HostRef{}, false
}

// HostAt returns the host at index within the group at path, together with
// its chain.
func HostAt(cfg *Config, path GroupPath, index int) (HostRef, bool) {
	g, ok := FindGroupByPath(cfg, path)
	if !ok || index < 0 || index >= len(g.Hosts) {
		return HostRef{}, false
	}
	return HostRef{
		Host:  g.Hosts[index],
		Path:  append(GroupPath(nil), path...),
		Index: index,
		Chain: GroupChain(cfg, path),
	}, true
}
