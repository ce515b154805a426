package manager

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SSHHostEntry is one literal Host alias parsed from an OpenSSH client config
// (e.g. ~/.ssh/config). Wildcard and negated patterns never produce entries.
type SSHHostEntry struct {
	Alias         string
	HostName      string
	User          string
	Port          int
	IdentityFiles []string

	// Source file and 1-based line of the Host directive.
	Source    string
	StartLine int
}

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

// LoadSSHConfig parses one or more OpenSSH client config files, following
// Include directives (globs are relative to the including file). Later
// blocks override earlier ones for the same alias. Entries are sorted by
// alias. Match sections are skipped.
func LoadSSHConfig(paths ...string) ([]SSHHostEntry, error) {
	if len(paths) == 0 {
		return nil, errors.New("no ssh config paths provided")
	}
	p := &sshParser{visited: map[string]struct{}{}, byAlias: map[string]int{}}
	for _, path := range paths {
		if err := p.parseFile(expandPath(path)); err != nil {
			return nil, err
		}
	}
	sort.Slice(p.entries, func(i, j int) bool { return p.entries[i].Alias < p.entries[j].Alias })
	return p.entries, nil
}

// ConvertSSHToGroup turns parsed entries into a single group named name.
// The alias becomes the display name; hostName falls back to the alias when
// the block has no HostName. Only the first IdentityFile is kept. Nothing is
// written; the caller decides whether to add the group to a store.
func ConvertSSHToGroup(name string, entries []SSHHostEntry) Group {
	g := Group{Name: name, Hosts: make([]Host, 0, len(entries))}
	for _, e := range entries {
		h := Host{Name: e.Alias, HostName: e.HostName, User: e.User, Port: e.Port}
		if h.HostName == "" {
			h.HostName = e.Alias
		}
		if len(e.IdentityFiles) > 0 {
			h.IdentityFile = e.IdentityFiles[0]
			h.PreferredAuthentication = AuthPublicKey
		}
		g.Hosts = append(g.Hosts, h)
	}
	return g
}

type sshParser struct {
	visited map[string]struct{}
	entries []SSHHostEntry
	byAlias map[string]int
}

func (p *sshParser) add(e SSHHostEntry) {
	if i, ok := p.byAlias[e.Alias]; ok {
		p.entries[i] = e
		return
	}
	p.byAlias[e.Alias] = len(p.entries)
	p.entries = append(p.entries, e)
}

type sshBlock struct {
	patterns  []string
	settings  map[string][]string
	source    string
	startLine int
	skip      bool
}

func (b *sshBlock) set(key, value string) {
	if key == "identityfile" {
		b.settings[key] = append(b.settings[key], value)
		return
	}
	// OpenSSH uses the first value obtained for each parameter.
	if _, ok := b.settings[key]; !ok {
		b.settings[key] = []string{value}
	}
}

func (b *sshBlock) first(key string) string {
	if v := b.settings[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (b *sshBlock) entries() []SSHHostEntry {
	if b == nil || b.skip {
		return nil
	}
	port, _ := strconv.Atoi(b.first("port"))
	if port < 0 {
		port = 0
	}
	var out []SSHHostEntry
	for _, pat := range b.patterns {
		if !isLiteralHostPattern(pat) {
			continue
		}
		out = append(out, SSHHostEntry{
			Alias:         pat,
			HostName:      b.first("hostname"),
			User:          b.first("user"),
			Port:          port,
			IdentityFiles: append([]string(nil), b.settings["identityfile"]...),
			Source:        b.source,
			StartLine:     b.startLine,
		})
	}
	return out
}

func (p *sshParser) parseFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, ok := p.visited[abs]; ok {
		return nil
	}
	p.visited[abs] = struct{}{}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open ssh config %s: %w", abs, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var cur *sshBlock
	flush := func() {
		for _, e := range cur.entries() {
			p.add(e)
		}
		cur = nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		key, val, ok := splitKeyVal(strings.TrimSpace(stripSSHInlineComment(sc.Text())))
		if !ok {
			continue
		}
		switch key = strings.ToLower(key); key {
		case "host":
			flush()
			cur = &sshBlock{patterns: strings.Fields(val), settings: map[string][]string{}, source: abs, startLine: lineNo}
		case "match":
			flush()
			cur = &sshBlock{skip: true, settings: map[string][]string{}}
		case "include":
			flush()
			for _, inc := range expandIncludePatterns(abs, val) {
				if err := p.parseFile(inc); err != nil {
					return err
				}
			}
		default:
			if cur != nil {
				cur.set(key, unquote(val))
			}
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan ssh config %s: %w", abs, err)
	}
	return nil
}

func stripSSHInlineComment(s string) string {
	inSingle, inDouble := false, false
	for i, r := range s {
		switch r {
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return strings.TrimRight(s[:i], " \t")
			}
		}
	}
	return s
}

// splitKeyVal accepts "Key Value" and "Key=Value".
func splitKeyVal(line string) (key, val string, ok bool) {
	i := strings.IndexAny(line, " \t=")
	if i <= 0 {
		return "", "", false
	}
	key = line[:i]
	val = strings.TrimSpace(line[i+1:])
	val = strings.TrimSpace(strings.TrimPrefix(val, "="))
	return key, val, true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func expandIncludePatterns(baseFile, pattern string) []string {
	var out []string
	for _, pat := range strings.Fields(pattern) {
		pat = expandPath(pat)
		if !filepath.IsAbs(pat) {
			pat = filepath.Join(filepath.Dir(baseFile), pat)
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
				out = append(out, m)
			}
		}
	}
	return out
}

func isLiteralHostPattern(p string) bool {
	return p != "" && !strings.HasPrefix(p, "!") && !strings.ContainsAny(p, "*?[] \t")
}
