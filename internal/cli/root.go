// Package cli implements blockbillctl, the operator command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/blockbill/internal/app"
	"github.com/MrJamesThe3rd/blockbill/internal/config"
)

var version = "dev"

// env carries the global flags and the lazily opened application.
type env struct {
	format  string
	envFile string

	cfg  *config.Config
	open func(ctx context.Context, cfg *config.Config) (*app.App, error)
	app  *app.App
}

func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}

	if err := godotenv.Load(e.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", e.envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	e.cfg = cfg

	return cfg, nil
}

func (e *env) application(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}

	cfg, err := e.config()
	if err != nil {
		return nil, err
	}

	a, err := e.open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	e.app = a

	return a, nil
}

func (e *env) close() {
	if e.app == nil {
		return
	}

	if err := e.app.Close(); err != nil {
		slog.Error("failed to close", "error", err)
	}
}

func newRootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "blockbillctl",
		Short:         "Inspect and audit BlockBill invoices",
		Long:          "blockbillctl reads invoices straight from the configured record store, verifies them against their event history and manages the audit archive.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch e.format {
			case formatText, formatJSON, formatYAML:
				return nil
			}

			return fmt.Errorf("unknown --format %q: want text, json or yaml", e.format)
		},
	}

	cmd.PersistentFlags().StringVarP(&e.format, "format", "o", formatText, "output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&e.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	cmd.AddCommand(newGetCmd(e))
	cmd.AddCommand(newListCmd(e))
	cmd.AddCommand(newHistoryCmd(e))
	cmd.AddCommand(newVerifyCmd(e))
	cmd.AddCommand(newArchiveCmd(e))
	cmd.AddCommand(newStatementCmd(e))
	cmd.AddCommand(newImportCmd(e))
	cmd.AddCommand(newTokenCmd(e))

	return cmd
}

// Execute runs blockbillctl against the store configured in the environment.
func Execute() error {
	e := &env{open: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		logger := cfg.Logger(os.Stderr)
		return app.New(ctx, cfg, logger)
	}}

	defer e.close()

	return newRootCmd(e).Execute()
}

// NewRootCmdForTest returns the root command bound to an already built app and config.
func NewRootCmdForTest(a *app.App, cfg *config.Config) *cobra.Command {
	e := &env{
		cfg:  cfg,
		open: func(context.Context, *config.Config) (*app.App, error) { return a, nil },
	}

	return newRootCmd(e)
}
