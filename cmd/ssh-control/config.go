package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ssh-control/pkg/manager"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show where ssh-control reads and writes",
	}
	cmd.AddCommand(a.configInitCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config, workspace, settings and state paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.resolvedSettingsPath()
			if err != nil {
				return err
			}
			state, err := manager.DefaultStatePath()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "global:    %s\n", a.store.GlobalPath())
			if ws := a.store.WorkspacePath(); ws != "" {
				mark := ""
				if !a.store.HasWorkspaceConfig() {
					mark = " (missing)"
				}
				fmt.Fprintf(a.stdout, "workspace: %s%s\n", ws, mark)
			}
			fmt.Fprintf(a.stdout, "writes:    %s\n", a.store.SavePath())
			fmt.Fprintf(a.stdout, "settings:  %s\n", settings)
			fmt.Fprintf(a.stdout, "state:     %s\n", state)
			return nil
		},
	})
	return cmd
}

func (a *app) resolvedSettingsPath() (string, error) {
	if a.settingsPath != "" {
		return a.settingsPath, nil
	}
	return manager.DefaultSettingsPath()
}

func (a *app) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write settings.yaml with the default values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolvedSettingsPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := manager.SaveSettings(path, manager.DefaultSettings()); err != nil {
				return configError(err)
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText("Wrote "+path))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing settings file")
	return cmd
}
