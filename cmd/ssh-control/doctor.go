package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ssh-control/pkg/manager"
)

var errDoctorFailed = errors.New("problems found")

func (a *app) doctorCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the config files, remote fragments and identity files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.stdout
			fmt.Fprintf(out, "Config: %s\n", a.store.Describe())
			cfg, err := a.load()
			if err != nil {
				fmt.Fprintf(out, "  ✗ %v\n", err)
				return err
			}
			fmt.Fprintf(out, "  ✓ %d top-level groups\n", len(cfg.Groups))

			reports, warnings, err := manager.CheckIdentityFiles(cmd.Context(), cfg, a.remote)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, struct {
					Identities []manager.IdentityReport `json:"identities"`
					Warnings   []string                 `json:"warnings"`
				}{reports, warnings})
			}

			failed := false
			fmt.Fprintln(out, "Remote fragments:")
			if len(warnings) == 0 {
				fmt.Fprintln(out, "  ✓ ok")
			}
			for _, w := range warnings {
				failed = true
				fmt.Fprintf(out, "  ✗ %s\n", w)
			}
			for _, ci := range a.remote.CacheInfo() {
				fmt.Fprintf(out, "  · %s: %d hosts, %d groups\n", ci.URL, ci.Hosts, ci.Groups)
			}

			fmt.Fprintln(out, "Identity files:")
			if len(reports) == 0 {
				fmt.Fprintln(out, "  (none referenced)")
			}
			for _, r := range reports {
				mark := "✓"
				if !r.Status.Healthy() {
					mark, failed = "✗", true
				}
				line := fmt.Sprintf("  %s %s: %s", mark, r.Path, r.Status)
				if r.Detail != "" {
					line += " (" + r.Detail + ")"
				}
				fmt.Fprintln(out, line)
				fmt.Fprintf(out, "      used by %s\n", strings.Join(r.Hosts, ", "))
			}
			if failed {
				return errDoctorFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
