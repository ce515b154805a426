// Package api serves the host tree over a local JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ssh-control/pkg/logging"
	"ssh-control/pkg/manager"
	"ssh-control/pkg/metrics"
	"ssh-control/pkg/remote"
)

const redacted = "********"

// Server exposes a Store, the remote cache and a Launcher over HTTP.
type Server struct {
	store    *manager.Store
	remote   *remote.Service
	launcher *manager.Launcher
	log      *zap.Logger
	mux      *http.ServeMux
}

// New wires the routes. remote and launcher may be nil; fresh ones are
// created.
func New(store *manager.Store, rs *remote.Service, launcher *manager.Launcher, log *zap.Logger) *Server {
	if rs == nil {
		rs = remote.New()
	}
	if launcher == nil {
		launcher = manager.NewLauncher()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{store: store, remote: rs, launcher: launcher, log: log, mux: http.NewServeMux()}

	s.handle("GET /api/config", s.getConfig)
	s.handle("GET /api/children", s.getChildren)
	s.handle("POST /api/groups", s.addGroup)
	s.handle("DELETE /api/groups", s.deleteGroup)
	s.handle("POST /api/hosts", s.addHost)
	s.handle("PUT /api/hosts", s.updateHost)
	s.handle("DELETE /api/hosts", s.deleteHost)
	s.handle("GET /api/resolve", s.resolve)
	s.handle("GET /api/sessions", s.listSessions)
	s.handle("POST /api/sessions", s.launch)
	s.handle("GET /api/sessions/{id}/snippets", s.sessionSnippets)
	s.handle("DELETE /api/sessions/{id}", s.closeSession)
	s.handle("GET /api/remote/cache", s.cacheInfo)
	s.handle("DELETE /api/remote/cache", s.clearCache)
	s.mux.Handle("GET /metrics", metrics.Handler())
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("api listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handle registers fn under pattern with request logging and metrics.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	method, route, _ := strings.Cut(pattern, " ")
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		log := s.log.With(zap.String("method", method), zap.String("route", route))
		fn(sw, r.WithContext(logging.IntoContext(r.Context(), log)))
		d := time.Since(start)
		metrics.RecordHTTPRequest(method, route, sw.status, d)
		log.Debug("request", zap.String("path", r.URL.Path), zap.Int("status", sw.status), zap.Duration("took", d))
	})
}

type errorResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// load returns the merged config, or writes a 500 and reports false.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*manager.Config, bool) {
	cfg, err := s.store.Load()
	if err != nil {
		logging.FromContext(r.Context()).Error("load config", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return cfg, true
}

func queryPath(r *http.Request) (manager.GroupPath, error) {
	return manager.ParseGroupPath(r.URL.Query().Get("path"))
}

func queryIndex(r *http.Request) (int, error) {
	return strconv.Atoi(r.URL.Query().Get("index"))
}

// redact hides basic-auth passwords.
func redact(groups []manager.Group) {
	for i := range groups {
		if rh := groups[i].RemoteHosts; rh != nil && rh.BasicAuth != nil {
			ba := *rh.BasicAuth
			ba.Password = redacted
			rhc := *rh
			rhc.BasicAuth = &ba
			groups[i].RemoteHosts = &rhc
		}
		redact(groups[i].Groups)
	}
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.load(w, r)
	if !ok {
		return
	}
	out := cfg.Clone()
	redact(out.Groups)
	writeJSON(w, http.StatusOK, out)
}

// ChildResp is one entry of GET /api/children.
type ChildResp struct {
	Kind     string                    `json:"kind"`
	Name     string                    `json:"name"`
	HostName string                    `json:"hostName,omitempty"`
	Path     string                    `json:"path"`
	Index    int                       `json:"index"`
	Remote   bool                      `json:"remote,omitempty"`
	Error    string                    `json:"error,omitempty"`
	Settings *manager.ResolvedSettings `json:"settings,omitempty"`
}

type childrenResp struct {
	Children []ChildResp `json:"children"`
	Warnings []string    `json:"warnings,omitempty"`
}

func (s *Server) getChildren(w http.ResponseWriter, r *http.Request) {
	path, err := queryPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, ok := s.load(w, r)
	if !ok {
		return
	}
	listing := manager.ListChildren(r.Context(), cfg, path, s.remote)
	out := childrenResp{Children: make([]ChildResp, 0, len(listing.Children)), Warnings: listing.Warnings}
	var chain []manager.Group
	for _, c := range listing.Children {
		cr := ChildResp{Path: c.Path.String(), Index: c.Index, Remote: c.Remote}
		switch {
		case c.Err != nil:
			cr.Kind, cr.Name, cr.Error = "error", c.Host.Name, c.Err.Error()
		case c.Kind == manager.ChildGroup:
			cr.Kind, cr.Name = "group", c.Group.Name
		default:
			if chain == nil {
				chain = manager.GroupChainAugmented(r.Context(), cfg, path, s.remote)
			}
			rs := manager.ResolveHostSettings(c.Host, chain)
			cr.Kind, cr.Name, cr.HostName, cr.Settings = "host", c.Host.Name, c.Host.HostName, &rs
		}
		out.Children = append(out.Children, cr)
	}
	writeJSON(w, http.StatusOK, out)
}

type addGroupReq struct {
	Parent string        `json:"parent"`
	Group  manager.Group `json:"group"`
}

func (s *Server) addGroup(w http.ResponseWriter, r *http.Request) {
	var req addGroupReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	parent, err := manager.ParseGroupPath(req.Parent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mutation(w, r, http.StatusCreated, func() (bool, error) { return s.store.AddGroup(req.Group, parent) })
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	path, err := queryPath(r)
	if err != nil || len(path) == 0 {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}
	s.mutation(w, r, http.StatusOK, func() (bool, error) { return s.store.DeleteGroup(path) })
}

type hostReq struct {
	Path  string       `json:"path"`
	Index *int         `json:"index,omitempty"`
	Host  manager.Host `json:"host"`
}

func (s *Server) addHost(w http.ResponseWriter, r *http.Request) {
	var req hostReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := manager.ParseGroupPath(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mutation(w, r, http.StatusCreated, func() (bool, error) { return s.store.AddHost(path, req.Host) })
}

func (s *Server) updateHost(w http.ResponseWriter, r *http.Request) {
	var req hostReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := manager.ParseGroupPath(req.Path)
	if err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "path and index required")
		return
	}
	s.mutation(w, r, http.StatusOK, func() (bool, error) { return s.store.UpdateHost(path, *req.Index, req.Host) })
}

func (s *Server) deleteHost(w http.ResponseWriter, r *http.Request) {
	path, err := queryPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := queryIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index required")
		return
	}
	s.mutation(w, r, http.StatusOK, func() (bool, error) { return s.store.DeleteHost(path, index) })
}

// mutation runs fn and maps its result: an error is a 400 when it is a
// validation failure of the request and 500 otherwise; no change is a 404.
func (s *Server) mutation(w http.ResponseWriter, r *http.Request, okStatus int, fn func() (bool, error)) {
	changed, err := fn()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, manager.ErrNameRequired) || errors.Is(err, manager.ErrHostNameRequired) {
			status = http.StatusBadRequest
		}
		logging.FromContext(r.Context()).Warn("mutation failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "no such group or host")
		return
	}
	writeJSON(w, okStatus, map[string]bool{"changed": true})
}

// ResolveResp is returned by GET /api/resolve.
type ResolveResp struct {
	Host     manager.Host             `json:"host"`
	Settings manager.ResolvedSettings `json:"settings"`
	Snippets []manager.Snippet        `json:"snippets"`
	Command  string                   `json:"command"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	path, err := queryPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := queryIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "index required")
		return
	}
	cfg, ok := s.load(w, r)
	if !ok {
		return
	}
	ref, ok := manager.ResolveHostRef(r.Context(), cfg, path, index, s.remote)
	if !ok {
		writeError(w, http.StatusNotFound, "no such host")
		return
	}
	settings := manager.ResolveHostSettings(ref.Host, ref.Chain)
	writeJSON(w, http.StatusOK, ResolveResp{
		Host:     ref.Host,
		Settings: settings,
		Snippets: nonNil(manager.AggregateSnippets(ref.Host, ref.Chain)),
		Command:  manager.CommandString(manager.BuildSSHCommand(ref.Host, settings)),
	})
}

type launchReq struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
}

func (s *Server) launch(w http.ResponseWriter, r *http.Request) {
	var req launchReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := manager.ParseGroupPath(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, ok := s.load(w, r)
	if !ok {
		return
	}
	sess, ok := s.launcher.LaunchAt(r.Context(), cfg, path, req.Index, s.remote)
	if !ok {
		writeError(w, http.StatusNotFound, "no such host")
		return
	}
	logging.FromContext(r.Context()).Info("session launched", zap.String("id", string(sess.ID)), zap.String("host", sess.HostName))
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.launcher.Sessions())
}

func (s *Server) sessionSnippets(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.load(w, r)
	if !ok {
		return
	}
	snippets, ok := s.launcher.Snippets(r.Context(), cfg, s.remote, manager.SessionID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(snippets))
}

func nonNil(s []manager.Snippet) []manager.Snippet {
	if s == nil {
		return []manager.Snippet{}
	}
	return s
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	if !s.launcher.Close(manager.SessionID(r.PathValue("id"))) {
		writeError(w, http.StatusNotFound, "no such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cacheInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.remote.CacheInfo())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	s.remote.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}
