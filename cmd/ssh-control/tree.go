package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ssh-control/pkg/manager"
	"ssh-control/pkg/tui"
)

func (a *app) theme() tui.Theme {
	if f, ok := a.stdout.(*os.File); ok {
		return tui.LoadTheme(f)
	}
	return tui.NoTheme()
}

func (a *app) treeCmd() *cobra.Command {
	var (
		depth     int
		showPaths bool
	)
	cmd := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the host tree, remote fragments included",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var root manager.GroupPath
			if len(args) == 1 {
				p, err := parsePath(args[0])
				if err != nil {
					return err
				}
				root = p
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			warnings, err := tui.RenderTree(cmd.Context(), a.stdout, cfg, root, a.remote, tui.TreeOptions{
				Theme:     a.theme(),
				ShowPaths: showPaths,
				MaxDepth:  depth,
			})
			a.warn(warnings)
			return err
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Limit the number of group levels shown (0 = all)")
	cmd.Flags().BoolVarP(&showPaths, "paths", "p", false, "Show group paths and host indexes")
	return cmd
}

func (a *app) lsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List the direct children of a group",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path manager.GroupPath
			if len(args) == 1 {
				p, err := parsePath(args[0])
				if err != nil {
					return err
				}
				path = p
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			if _, ok := manager.LookupGroup(cmd.Context(), cfg, path, a.remote); len(path) > 0 && !ok {
				return notFoundf("no group at %s", path)
			}
			listing := manager.ListChildren(cmd.Context(), cfg, path, a.remote)
			a.warn(listing.Warnings)

			rows := make([]lsRow, 0, len(listing.Children))
			for _, c := range listing.Children {
				r := lsRow{Kind: "host", Name: c.Host.Name, Path: c.Path.String(), Index: c.Index, Remote: c.Remote}
				switch {
				case c.Err != nil:
					r.Kind, r.Target = "error", c.Err.Error()
				case c.Kind == manager.ChildGroup:
					r.Kind, r.Name = "group", c.Group.Name
				default:
					chain := manager.GroupChainAugmented(cmd.Context(), cfg, c.Path, a.remote)
					r.Target = tui.HostLabel(manager.Host{HostName: c.Host.HostName}, manager.ResolveHostSettings(c.Host, chain))
				}
				rows = append(rows, r)
			}
			if asJSON {
				return writeJSON(a.stdout, rows)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tPATH\tINDEX\tNAME\tTARGET")
			for _, r := range rows {
				kind := r.Kind
				if r.Remote {
					kind += "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", kind, r.Path, r.Index, r.Name, r.Target)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// lsRow is one row of `ls`. Remote entries are starred in table output.
type lsRow struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Index  int    `json:"index"`
	Remote bool   `json:"remote,omitempty"`
	Target string `json:"target,omitempty"`
}

// listEntry is one row of `list --json`.
type listEntry struct {
	Name     string                   `json:"name"`
	HostName string                   `json:"hostName"`
	Path     string                   `json:"path"`
	Index    int                      `json:"index"`
	Remote   bool                     `json:"remote,omitempty"`
	Settings manager.ResolvedSettings `json:"settings"`
	Command  string                   `json:"command"`
}

func (a *app) listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every host with its resolved connection command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			var entries []listEntry
			warnings, err := manager.Walk(cmd.Context(), cfg, a.remote, func(v manager.HostVisit) error {
				s := manager.ResolveHostSettings(v.Host, v.Chain)
				entries = append(entries, listEntry{
					Name:     v.Host.Name,
					HostName: v.Host.HostName,
					Path:     v.Path.String(),
					Index:    v.Index,
					Remote:   v.Remote,
					Settings: s,
					Command:  manager.CommandString(manager.BuildSSHCommand(v.Host, s)),
				})
				return nil
			})
			a.warn(warnings)
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []listEntry{}
				}
				return writeJSON(a.stdout, entries)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tINDEX\tNAME\tCOMMAND")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Path, e.Index, e.Name, e.Command)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
