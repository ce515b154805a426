package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ssh-control/pkg/manager"
	"ssh-control/pkg/tui"
)

const targetUsage = "<host> | <group-path> <index>"

// resolved is the output of `resolve --json`.
type resolved struct {
	Host     manager.Host             `json:"host"`
	Path     string                   `json:"path"`
	Index    int                      `json:"index"`
	Groups   []string                 `json:"groups"`
	Settings manager.ResolvedSettings `json:"settings"`
	Snippets []manager.Snippet        `json:"snippets"`
	Command  string                   `json:"command"`
}

func resolveRef(ref manager.HostRef) resolved {
	s := manager.ResolveHostSettings(ref.Host, ref.Chain)
	groups := make([]string, 0, len(ref.Chain))
	for i := len(ref.Chain) - 1; i >= 0; i-- {
		groups = append(groups, ref.Chain[i].Name)
	}
	snippets := manager.AggregateSnippets(ref.Host, ref.Chain)
	if snippets == nil {
		snippets = []manager.Snippet{}
	}
	return resolved{
		Host:     ref.Host,
		Path:     ref.Path.String(),
		Index:    ref.Index,
		Groups:   groups,
		Settings: s,
		Snippets: snippets,
		Command:  manager.CommandString(manager.BuildSSHCommand(ref.Host, s)),
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "resolve " + targetUsage,
		Short: "Show a host's effective settings and where they come from",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ref, err := a.findTarget(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			r := resolveRef(ref)
			if asJSON {
				return writeJSON(a.stdout, r)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Host:\t%s (%s)\n", r.Host.Name, r.Host.HostName)
			fmt.Fprintf(tw, "Position:\t%s index %d\n", r.Path, r.Index)
			fmt.Fprintf(tw, "Groups:\t%v\n", r.Groups)
			fmt.Fprintf(tw, "User:\t%s\n", r.Settings.User)
			fmt.Fprintf(tw, "Port:\t%d\n", r.Settings.Port)
			if r.Settings.IdentityFile != "" {
				fmt.Fprintf(tw, "IdentityFile:\t%s\n", r.Settings.IdentityFile)
			}
			if r.Settings.PreferredAuthentication != "" {
				fmt.Fprintf(tw, "Auth:\t%s\n", r.Settings.PreferredAuthentication)
			}
			fmt.Fprintf(tw, "Snippets:\t%d\n", len(r.Snippets))
			fmt.Fprintf(tw, "Command:\t%s\n", r.Command)
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// recordRecent remembers a produced command. Failures are logged only; the
// command has already been printed.
func (a *app) recordRecent(ref manager.HostRef, command string) {
	st, err := manager.LoadState("")
	if err != nil {
		a.log.Warn("load state", zap.Error(err))
		return
	}
	st.AddRecent(manager.RecentHost{
		Name:     ref.Host.Name,
		HostName: ref.Host.HostName,
		Command:  command,
		At:       time.Now().UTC().Format(time.RFC3339),
	})
	if err := manager.SaveState("", st); err != nil {
		a.log.Warn("save state", zap.Error(err))
	}
}

func (a *app) connectCmd() *cobra.Command {
	var noRecord bool
	cmd := &cobra.Command{
		Use:   "connect " + targetUsage,
		Short: "Print the ssh command for a host, e.g. eval \"$(ssh-control connect web1)\"",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ref, err := a.findTarget(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			command := manager.ConnectCommand(ref.Host, ref.Chain)
			fmt.Fprintln(a.stdout, command)
			if !noRecord {
				a.recordRecent(ref, command)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not add the host to recents")
	return cmd
}

func (a *app) snippetsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "snippets " + targetUsage,
		Short: "List the snippets available on a host, nearest first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ref, err := a.findTarget(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			return a.printSnippets(manager.AggregateSnippets(ref.Host, ref.Chain), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func (a *app) printSnippets(snippets []manager.Snippet, asJSON bool) error {
	if asJSON {
		if snippets == nil {
			snippets = []manager.Snippet{}
		}
		return writeJSON(a.stdout, snippets)
	}
	if len(snippets) == 0 {
		fmt.Fprintln(a.stdout, "No snippets.")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	for _, s := range snippets {
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Command)
	}
	return tw.Flush()
}

func (a *app) pickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Choose a host interactively and print its ssh command",
		Long: `Opens an interactive picker over every host, remote fragments included.

Use arrow keys or j/k to navigate, / to filter.

Actions:
  Enter  - Print the ssh command for the host
  s      - Print the host's snippets
  q/Esc  - Quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !tui.IsInteractive() {
				return errors.New("pick needs a terminal; use `ssh-control list` instead")
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			hosts, warnings, err := tui.CollectHosts(cmd.Context(), cfg, a.remote)
			a.warn(warnings)
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				fmt.Fprintln(a.stderr, "No hosts configured. Add one with: ssh-control add-host <group-path> <hostName>")
				return nil
			}
			res, err := tui.RunPicker(hosts, a.theme())
			if err != nil {
				return fmt.Errorf("picker error: %w", err)
			}
			if res.Host == nil {
				return nil
			}
			ref := visitRef(*res.Host)
			switch res.Action {
			case tui.ActionConnect:
				command := manager.ConnectCommand(ref.Host, ref.Chain)
				fmt.Fprintln(a.stdout, command)
				a.recordRecent(ref, command)
			case tui.ActionSnippets:
				return a.printSnippets(manager.AggregateSnippets(ref.Host, ref.Chain), false)
			}
			return nil
		},
	}
}

func (a *app) recentCmd() *cobra.Command {
	var (
		limit  int
		prune  int
		remove string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently produced connection commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := manager.LoadState("")
			if err != nil {
				return err
			}
			if remove != "" {
				if !st.RemoveRecent(remove) {
					return notFoundf("%q is not in recents", remove)
				}
				return manager.SaveState("", st)
			}
			if cmd.Flags().Changed("prune") {
				if !st.PruneRecents(prune) {
					return nil
				}
				return manager.SaveState("", st)
			}
			recents := st.Recents
			if limit > 0 && len(recents) > limit {
				recents = recents[:limit]
			}
			if asJSON {
				if recents == nil {
					recents = []manager.RecentHost{}
				}
				return writeJSON(a.stdout, recents)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, r := range recents {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.At, r.Name, r.Command)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Show at most this many entries (0 = all)")
	cmd.Flags().IntVar(&prune, "prune", 0, "Keep only the newest N entries (0 = default cap)")
	cmd.Flags().StringVar(&remove, "remove", "", "Forget entries with this name or hostName")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
