package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ssh-control/pkg/api"
	"ssh-control/pkg/manager"
)

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the host tree over a local JSON API",
		Long: `Serves the JSON API used by editor integrations, plus Prometheus
metrics on /metrics. Binds to loopback by default; the API has no
authentication.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.settings.API.Listen
			if listen != "" {
				addr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			srv := api.New(a.store, a.remote, manager.NewLauncher(), a.log.Named("api"))
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from settings, 127.0.0.1:7422)")
	return cmd
}

