package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "studycal/internal/log"
	"studycal/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled provider sync",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			a.cfg.Listen = listen
		}
		noSync, _ := cmd.Flags().GetBool("no-sync")

		appLog.Info("studycal starting",
			"version", version,
			"listen", a.cfg.Listen,
			"timezone", a.cfg.Timezone,
			"refresh", a.cfg.RefreshCron,
			"horizon_days", a.cfg.HorizonDays,
			"semester_filter", a.cfg.SemesterFilter,
		)

		// Root context with cancellation on SIGINT/SIGTERM.
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			select {
			case sig := <-sigCh:
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		deps := web.Deps{
			Config:    a.cfg,
			Store:     a.store,
			Dashboard: a.dash,
			Bus:       a.bus,
			Syncer:    a.syncer,
		}
		if !noSync {
			if err := a.syncer.Start(ctx, a.cfg.RefreshCron); err != nil {
				return err
			}
			go func() {
				if _, err := a.syncer.SyncAll(ctx); err != nil {
					appLog.Error("initial sync failed", err)
				}
			}()
		}

		err := web.NewServer(deps).Serve(ctx)
		appLog.Info("studycal exiting")
		return err
	}),
}

func init() {
	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().Bool("no-sync", false, "Do not run scheduled provider syncs")
}
