package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reconcile/internal/platform/config"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the contacts schema to the configured database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Store == config.StoreMemory {
				return fmt.Errorf("migrate needs a database store, got %q", rootOpts.Store)
			}
			_, closeStore, err := rootOpts.openStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if err := closeStore(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s store\n", rootOpts.Store)
			return err
		},
	}
}
