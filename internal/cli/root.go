// Package cli implements contactctl, an operator tool that runs identify,
// schema migrations and store maintenance directly against a contact store.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"reconcile/internal/contact"
	"reconcile/internal/platform/config"
	"reconcile/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Store       string
	SQLitePath  string
	DatabaseURL string
	Format      string // "json" | "text"
	Verbose     bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Flag defaults come from the same
// environment variables the server reads.
func NewRootCommand() *cobra.Command {
	env := config.FromEnv()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "contactctl",
		Short: "Inspect and reconcile the contact graph",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", env.Store, "contact store backend (memory|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", env.SQLitePath, "sqlite database file")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", env.Database.URL, "postgres connection URL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log store activity to stderr")

	cmd.AddCommand(NewIdentifyCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

func (o *RootOptions) serverConfig() config.Server {
	cfg := config.FromEnv()
	cfg.Store = o.Store
	cfg.SQLitePath = o.SQLitePath
	cfg.Database.URL = o.DatabaseURL
	return cfg
}

func (o *RootOptions) logger(stderr io.Writer) *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return logger.NewWithWriter(stderr, "debug")
}

// openStore opens the configured backend, applying its schema.
func (o *RootOptions) openStore(ctx context.Context, cmd *cobra.Command) (contact.Store, func() error, error) {
	return contact.OpenStore(ctx, o.serverConfig(), o.logger(cmd.ErrOrStderr()))
}
