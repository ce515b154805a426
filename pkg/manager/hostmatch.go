package manager

import (
	"context"
	"net"
	"strings"
)

// NormalizeHostName lower-cases s and strips a trailing dot and IPv6
// brackets, so "Web1.Example.com." and "web1.example.com" compare equal.
func NormalizeHostName(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = s[1 : len(s)-1]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// ShortHostName returns the canonical form of an IP literal, or the first DNS
// label of a name.
func ShortHostName(s string) string {
	full := NormalizeHostName(s)
	if ip := net.ParseIP(full); ip != nil {
		return ip.String()
	}
	if i := strings.IndexByte(full, '.'); i >= 0 {
		return full[:i]
	}
	return full
}

// HostNameMatches compares normalized full names first, then short names.
// There is no substring or glob matching.
func HostNameMatches(configured, query string) bool {
	a, b := NormalizeHostName(configured), NormalizeHostName(query)
	if a == "" || b == "" {
		return false
	}
	return a == b || ShortHostName(a) == ShortHostName(b)
}

// MatchHosts returns every host of the augmented tree whose hostName loosely
// matches query, or whose display name equals it ignoring case. It is the
// fallback for lookups where FindHost finds nothing.
func MatchHosts(ctx context.Context, cfg *Config, src RemoteSource, query string) ([]HostVisit, []string, error) {
	var out []HostVisit
	warnings, err := Walk(ctx, cfg, src, func(v HostVisit) error {
		if HostNameMatches(v.Host.HostName, query) || (v.Host.Name != "" && strings.EqualFold(v.Host.Name, strings.TrimSpace(query))) {
			out = append(out, v)
		}
		return nil
	})
	return out, warnings, err
}
