package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/inventra/internal/api"
	"github.com/kimhsiao/inventra/internal/inventory"
	"github.com/kimhsiao/inventra/internal/logging"
	"github.com/kimhsiao/inventra/internal/sync/scheduler"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local REST and websocket API",
		Long: `Serve the local API the front end uses. Connectivity transitions are
reported to POST /api/connectivity or over /ws; coming back online with
pending changes starts a sync pass.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	sched := scheduler.NewScheduler(a.coordinator)
	sched.Start(ctx)
	defer sched.Stop()

	server := api.NewServer(a.cfg.ListenAddr, api.Deps{
		Coordinator: a.coordinator,
		Repository:  inventory.NewRepository(a.coordinator),
		Session:     a.session,
		Scheduler:   sched,
	})

	err := server.Start(ctx)
	if err != nil {
		logging.Error("Local API stopped", err)
	}
	return err
}
