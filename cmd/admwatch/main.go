// Package main implements admwatch, the operator CLI for the admission monitor.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/app"
	"github.com/hkschools/admission-monitor/internal/config"
	"github.com/hkschools/admission-monitor/internal/logging"
)

var (
	// configPath points at an optional YAML config file
	configPath string
	jsonOutput bool
	version    = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "admwatch",
		Short: "Operate the kindergarten admission monitor",
		Long: `admwatch runs one-off monitoring tasks against the same database the
server uses: checking schools, seeding targets, running migrations and
sending digests.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults to $ADMWATCH_CONFIG)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newAnalyzeCmd(),
		newMonitorCmd(),
		newMonitorAllCmd(),
		newTargetsCmd(),
		newStatsCmd(),
		newSeedCmd(),
		newMigrateCmd(),
		newNotifyCmd(),
	)
	return root
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// withApp loads config, builds the app and runs fn with it.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
