// Package main provides encounterctl, the administration CLI for the
// encounter table service: monster catalog import and account management.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cory-johannsen/encounters/internal/config"
	"github.com/cory-johannsen/encounters/internal/observability"
	"github.com/cory-johannsen/encounters/internal/storage/postgres"
)

// env carries what every subcommand needs once the root command has loaded
// the configuration.
type env struct {
	configPath string
	timeout    time.Duration

	cfg    config.Config
	logger *zap.Logger
}

// connect opens the configured database.
func (e *env) connect(ctx context.Context) (*postgres.Pool, error) {
	pool, err := postgres.NewPool(ctx, e.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func rootCommand() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "encounterctl",
		Short:         "Administer the encounter table service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(e.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "configs/dev.yaml", "path to configuration file")
	root.PersistentFlags().DurationVar(&e.timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	root.AddCommand(
		importMonstersCommand(e),
		createAccountCommand(e),
		setRoleCommand(e),
	)
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
