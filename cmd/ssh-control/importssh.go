package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ssh-control/pkg/manager"
)

func (a *app) importSSHConfigCmd() *cobra.Command {
	var (
		name   string
		parent string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import-ssh-config [path...]",
		Short: "Import literal Host entries from OpenSSH config files as a new group",
		Long: `Reads ~/.ssh/config (or the given files), following Include directives,
and adds one group holding a host per literal Host alias. Wildcard patterns
and Match blocks are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				p, err := manager.DefaultSSHConfigPath()
				if err != nil {
					return err
				}
				paths = []string{p}
			}
			parentPath, err := parsePath(parent)
			if err != nil {
				return err
			}
			entries, err := manager.LoadSSHConfig(paths...)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return notFoundf("no literal Host entries in %v", paths)
			}
			g := manager.ConvertSSHToGroup(name, entries)
			if dryRun {
				return writeJSON(a.stdout, g)
			}
			changed, err := a.store.AddGroup(g, parentPath)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no group at %s", parentPath)
			}
			fmt.Fprintf(a.stdout, "Imported %d hosts into group %q\n", len(g.Hosts), g.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "SSH Config", "Name of the new group")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent group path (empty for a top-level group)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the group as JSON instead of saving it")
	return cmd
}
