package manager

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// SessionID is the opaque handle the Launcher issues for each produced
// connection command.
type SessionID string

// Session records a command handed to the terminal launcher.
type Session struct {
	ID        SessionID `json:"id"`
	Name      string    `json:"name"`
	HostName  string    `json:"hostName"`
	Path      GroupPath `json:"path"`
	Index     int       `json:"index"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"startedAt"`
}

// Launcher produces connection commands and keeps a registry of the sessions
// it launched, so that later lookups (snippets for a running session) go
// through a stable handle instead of a terminal's display name.
type Launcher struct {
	mu       sync.Mutex
	next     uint64
	sessions map[SessionID]Session
	now      func() time.Time
}

// NewLauncher returns an empty registry.
func NewLauncher() *Launcher {
	return &Launcher{sessions: map[SessionID]Session{}, now: time.Now}
}

// Launch resolves ref's settings, builds its command and registers a session.
func (l *Launcher) Launch(ref HostRef) Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	s := Session{
		ID:        SessionID("s" + strconv.FormatUint(l.next, 10)),
		Name:      ref.Host.Name,
		HostName:  ref.Host.HostName,
		Path:      append(GroupPath(nil), ref.Path...),
		Index:     ref.Index,
		Command:   ConnectCommand(ref.Host, ref.Chain),
		StartedAt: l.now(),
	}
	l.sessions[s.ID] = s
	return s
}

// Session returns the session registered under id.
func (l *Launcher) Session(id SessionID) (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	return s, ok
}

// Sessions returns all registered sessions, oldest first.
func (l *Launcher) Sessions() []Session {
	l.mu.Lock()
	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return len(out[i].ID) < len(out[j].ID) || (len(out[i].ID) == len(out[j].ID) && out[i].ID < out[j].ID)
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Close forgets a session. Reports whether it existed.
func (l *Launcher) Close(id SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.sessions[id]; !ok {
		return false
	}
	delete(l.sessions, id)
	return true
}

// Snippets returns the snippets available to the session's host. The host is
// re-resolved by its recorded path; if that path no longer points at the same
// hostName (the tree changed since launch), it is searched by hostName.
func (l *Launcher) Snippets(ctx context.Context, cfg *Config, src RemoteSource, id SessionID) ([]Snippet, bool) {
	s, ok := l.Session(id)
	if !ok {
		return nil, false
	}
	ref, ok := ResolveHostRef(ctx, cfg, s.Path, s.Index, src)
	if !ok || ref.Host.HostName != s.HostName {
		ref, ok = FindHost(cfg, s.HostName)
		if !ok {
			return nil, false
		}
	}
	return AggregateSnippets(ref.Host, ref.Chain), true
}

// LaunchAt resolves the host at index under path (remote hosts included) and
// launches it. Reports false when the position does not resolve.
func (l *Launcher) LaunchAt(ctx context.Context, cfg *Config, path GroupPath, index int, src RemoteSource) (Session, bool) {
	ref, ok := ResolveHostRef(ctx, cfg, path, index, src)
	if !ok {
		return Session{}, false
	}
	return l.Launch(ref), true
}
