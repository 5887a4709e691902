// Command penny runs the Penny Telegram bot.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/penny/core/buildinfo"
	corecmd "github.com/m3rciful/penny/core/cmd"
	coredatabase "github.com/m3rciful/penny/core/database"
	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/internal/app"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "penny",
		Short:         "Penny, a Telegram bot for tokens and expenses",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the YAML config (defaults to $"+corecmd.DefaultConfigEnvVar+" or "+defaultConfigPath+")")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return migrate(configPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			},
		},
	)
	return root
}

func runnerOptions(configPath string) corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		DefaultConfigPath: defaultConfigPath,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return app.Bootstrap(ctx, cfg.(*app.Config))
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	return corecmd.Run(ctx, runnerOptions(configPath))
}

func migrate(configPath string) error {
	carrier, err := corecmd.Load(runnerOptions(configPath))
	if err != nil {
		return err
	}
	cfg := carrier.(*app.Config)
	if !cfg.Database.Enabled() {
		return fmt.Errorf("migrate: database.host and database.name are required")
	}
	if err := logger.InitLogger(&cfg.Config); err != nil {
		return fmt.Errorf("migrate: logger init failed: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()
	return coredatabase.RunMigrations(cfg.Database)
}
