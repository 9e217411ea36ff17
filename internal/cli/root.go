// Package cli implements locatectl, the operator command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-service/internal/app"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/observability"
)

var (
	engineFile string
	cfg        *config.Config
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "locatectl",
	Short: "Operate the locate ticket compliance engine",
	Long: `locatectl runs sweeps on demand, inspects due alerts, applies database
migrations and validates engine files.

Configuration comes from the same environment variables as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if engineFile != "" {
			cfg.Engine.File = engineFile
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "locatectl %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&engineFile, "engine", "", "engine file path (overrides ENGINE_FILE)")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(holidaysCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the root command.
func Root() *cobra.Command {
	return rootCmd
}

// openApp assembles the engine for commands that touch tickets.
func openApp(cmd *cobra.Command) (*app.App, *zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, logger, app.Options{})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}
