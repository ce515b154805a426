package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ssh-control/pkg/logging"
	"ssh-control/pkg/manager"
	"ssh-control/pkg/remote"
)

// app carries flag values and the dependencies built from them. A fresh app
// backs every command tree so tests can run commands side by side.
type app struct {
	stdout, stderr io.Writer

	verbose      bool
	jsonLogs     bool
	configPath   string
	workspaceDir string
	settingsPath string

	settings manager.Settings
	log      *zap.Logger
	store    *manager.Store
	remote   *remote.Service
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "ssh-control",
		Short: "Organise SSH hosts into inheriting groups",
		Long: `ssh-control keeps SSH connection profiles in a tree of groups.

Hosts inherit user, port, identity file and snippets from enclosing groups.
A workspace config layers on top of the global one, and groups may pull in
hosts from a remote HTTP endpoint at read time.

Groups are addressed by dotted index paths ("0.2" is the third subgroup of
the first top-level group); hosts by a group path and an index.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
		PersistentPostRun: func(cmd *cobra.Command, args []string) { logging.Sync() },
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&a.jsonLogs, "json-logs", false, "Write logs as JSON")
	pf.StringVar(&a.configPath, "config", "", "Global host config (default $SSH_CONTROL_CONFIG or XDG path)")
	pf.StringVar(&a.workspaceDir, "workspace", "", "Workspace directory holding ssh-config.json")
	pf.StringVar(&a.settingsPath, "settings", "", "Path to settings.yaml")

	root.AddCommand(
		a.treeCmd(), a.lsCmd(), a.listCmd(),
		a.addGroupCmd(), a.addHostCmd(), a.updateHostCmd(), a.rmHostCmd(), a.rmGroupCmd(),
		a.resolveCmd(), a.connectCmd(), a.snippetsCmd(), a.pickCmd(), a.recentCmd(),
		a.remoteCmd(), a.importSSHConfigCmd(), a.doctorCmd(), a.configCmd(), a.serveCmd(),
	)
	return root
}

// setup loads settings, initialises logging and builds the store and remote
// service. Flags override settings.yaml.
func (a *app) setup() error {
	s, path, err := manager.LoadSettings(a.settingsPath)
	if err != nil {
		return configError(err)
	}
	a.settings = s

	lc := logging.Config{Level: s.Log.Level, Format: s.Log.Format}
	if a.verbose {
		lc.Level = "debug"
	}
	if a.jsonLogs {
		lc.Format = "json"
	}
	if err := logging.Init(lc); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.log = logging.L()
	a.log.Debug("settings loaded", zap.String("path", path))

	cfgPath := s.ConfigPath
	if a.configPath != "" {
		cfgPath = a.configPath
	}
	ws := s.WorkspaceDir
	if a.workspaceDir != "" {
		ws = a.workspaceDir
	}
	store, err := manager.NewStore(manager.StoreOptions{
		GlobalPath:   cfgPath,
		WorkspaceDir: ws,
		Logger:       a.log,
	})
	if err != nil {
		return configError(err)
	}
	a.store = store
	a.remote = remote.New(
		remote.WithTTL(s.Remote.CacheTTL),
		remote.WithTimeout(s.Remote.Timeout),
		remote.WithLogger(a.log.Named("remote")),
	)
	return nil
}

func (a *app) load() (*manager.Config, error) {
	cfg, err := a.store.Load()
	if err != nil {
		return nil, configError(err)
	}
	return cfg, nil
}

func (a *app) warn(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	t := a.theme()
	for _, w := range warnings {
		fmt.Fprintln(a.stderr, t.WarnText("warning: "+w))
	}
}

func parsePath(s string) (manager.GroupPath, error) {
	p, err := manager.ParseGroupPath(s)
	if err != nil {
		return nil, &exitError{code: ExitGeneralError, err: err}
	}
	return p, nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid host index %q", s)
	}
	return n, nil
}

// findTarget resolves a host from either "<path> <index>" or a single
// hostName/name query. Positions may point into remote fragments. A query
// without an exact match falls back to loose hostname matching if that is
// unambiguous.
func (a *app) findTarget(ctx context.Context, cfg *manager.Config, args []string) (manager.HostRef, error) {
	switch len(args) {
	case 2:
		path, err := parsePath(args[0])
		if err != nil {
			return manager.HostRef{}, err
		}
		idx, err := parseIndex(args[1])
		if err != nil {
			return manager.HostRef{}, err
		}
		ref, ok := manager.ResolveHostRef(ctx, cfg, path, idx, a.remote)
		if !ok {
			return manager.HostRef{}, notFoundf("no host at %s index %d", path, idx)
		}
		return ref, nil
	case 1:
		if ref, ok := manager.FindHost(cfg, args[0]); ok {
			return ref, nil
		}
		matches, warnings, err := manager.MatchHosts(ctx, cfg, a.remote, args[0])
		a.warn(warnings)
		if err != nil {
			return manager.HostRef{}, err
		}
		for _, v := range matches {
			if v.Host.HostName == args[0] || v.Host.Name == args[0] {
				return visitRef(v), nil
			}
		}
		switch len(matches) {
		case 0:
			return manager.HostRef{}, notFoundf("no host named %q", args[0])
		case 1:
			return visitRef(matches[0]), nil
		}
		names := make([]string, len(matches))
		for i, v := range matches {
			names[i] = fmt.Sprintf("%s (%s #%d)", v.Host.HostName, v.Path, v.Index)
		}
		return manager.HostRef{}, fmt.Errorf("%q matches %d hosts: %s", args[0], len(matches), strings.Join(names, ", "))
	default:
		return manager.HostRef{}, fmt.Errorf("expected <host> or <path> <index>")
	}
}

func visitRef(v manager.HostVisit) manager.HostRef {
	return manager.HostRef{Host: v.Host, Path: v.Path, Index: v.Index, Chain: v.Chain}
}
