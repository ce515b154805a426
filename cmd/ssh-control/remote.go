package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ssh-control/pkg/manager"
)

func (a *app) remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect remote host fragments",
	}
	cmd.AddCommand(a.remoteFetchCmd(), a.remoteStatusCmd())
	return cmd
}

func (a *app) remoteFetchCmd() *cobra.Command {
	var (
		asJSON             bool
		address, user, pwd string
	)
	cmd := &cobra.Command{
		Use:   "fetch [group-path]",
		Short: "Fetch and print the remote fragment of a group, or of --url",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rh manager.RemoteHostsConfig
			switch {
			case address != "":
				rh.Address = address
				if user != "" {
					rh.BasicAuth = &manager.BasicAuth{Username: user, Password: pwd}
				}
			case len(args) == 1:
				path, err := parsePath(args[0])
				if err != nil {
					return err
				}
				cfg, err := a.load()
				if err != nil {
					return err
				}
				g, ok := manager.LookupGroup(cmd.Context(), cfg, path, a.remote)
				if !ok {
					return notFoundf("no group at %s", path)
				}
				if g.RemoteHosts == nil || g.RemoteHosts.Address == "" {
					return notFoundf("group %q has no remote hosts", g.Name)
				}
				rh = *g.RemoteHosts
			default:
				return fmt.Errorf("give a group path or --url")
			}

			res, err := a.remote.Fetch(cmd.Context(), rh)
			if err != nil {
				return remoteError(err)
			}
			if res.Stale {
				a.warn([]string{fmt.Sprintf("using cached remote data: %v", res.Warning)})
			}
			if asJSON {
				return writeJSON(a.stdout, res.Response)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			for _, h := range res.Response.Hosts {
				fmt.Fprintf(tw, "host\t%s\t%s\n", h.Name, h.HostName)
			}
			for _, g := range res.Response.Groups {
				fmt.Fprintf(tw, "group\t%s\t%d hosts\n", g.Name, len(g.Hosts))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&address, "url", "", "Fetch this address instead of a group's")
	cmd.Flags().StringVar(&user, "user", "", "Basic auth user for --url")
	cmd.Flags().StringVar(&pwd, "password", "", "Basic auth password for --url")
	return cmd
}

// remoteStatusCmd walks the tree so every fragment is fetched once, then
// reports the cache. The cache lives for one process.
func (a *app) remoteStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch every remote fragment in the tree and report the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			warnings, err := manager.Walk(cmd.Context(), cfg, a.remote, func(manager.HostVisit) error { return nil })
			a.warn(warnings)
			if err != nil {
				return err
			}
			info := a.remote.CacheInfo()
			if asJSON {
				return writeJSON(a.stdout, info)
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tHOSTS\tGROUPS\tAGE")
			for _, i := range info {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%ds\n", i.URL, i.Hosts, i.Groups, i.AgeSeconds)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
