// Package commands implements the studycal command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"studycal/internal/config"
	appLog "studycal/internal/log"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "studycal",
	Short: "Course-aware calendar and task dashboard for students",
	Long: `studycal syncs Canvas and Google calendar feeds, groups assignments into
courses, and serves the dashboard API, calendar grids and a live event stream.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig reads .env, the YAML config and STUDYCAL_* overrides, then
// applies the configured log level.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		appLog.Warn("failed to read .env", "reason", err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// withApp wraps a command so it runs with a fully wired app that is closed
// afterwards.
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./studycal.yaml", "Path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(agendaCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}
