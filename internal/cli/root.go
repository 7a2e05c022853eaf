// Package cli implements the recon command line.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"recon/internal/app"
	"recon/internal/datahive/models"
	"recon/internal/platform/config"
	"recon/internal/platform/logger"
)

// Runner runs one reconciliation batch.
type Runner interface {
	Run(ctx context.Context, class models.IdentifierClass, notices []models.Notice) (*models.RunSummary, error)
}

// Factory builds the runner and returns a cleanup func.
type Factory func(ctx context.Context, cfg config.Config, log *slog.Logger) (Runner, func() error, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	LogLevel   string

	// Factory overrides how the runner is built (for testing).
	Factory Factory
	Stderr  io.Writer
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Factory: defaultFactory, Stderr: os.Stderr})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recon",
		Short: "Reconcile notice identifiers against the DataHive sources",
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file overlaid on the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	return cmd
}

func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.ConfigFile != "" {
		if err := os.Setenv(config.FileEnv, o.ConfigFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

func (o *RootOptions) logger(cfg config.Config) *slog.Logger {
	w := o.Stderr
	if w == nil {
		w = os.Stderr
	}
	return logger.NewWithWriter(w, cfg.LogLevel)
}

func defaultFactory(ctx context.Context, cfg config.Config, log *slog.Logger) (Runner, func() error, error) {
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a.Job, a.Close, nil
}
