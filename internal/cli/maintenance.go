package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reconcile/pkg/platform/sentinel"
)

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "count",
		Short:        "Print the number of live contacts",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := rootOpts.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.Count(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
}

// NewDeleteCommand creates the delete command. Only secondaries and primaries
// with no live secondaries can be deleted, so no link is left dangling.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "delete <contact-id>",
		Short:        "Soft-delete a contact",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid contact id %q", args[0])
			}

			ctx := cmd.Context()
			store, closeStore, err := rootOpts.openStore(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			err = store.RunInTx(ctx, func(txCtx context.Context) error {
				linked, err := store.FindByLinkedID(txCtx, id)
				if err != nil {
					return err
				}
				if len(linked) > 0 {
					return fmt.Errorf("contact %d is the primary of %d secondaries", id, len(linked))
				}
				return store.SoftDelete(txCtx, id)
			})
			if errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("contact %d not found", id)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "contact %d deleted\n", id)
			return err
		},
	}
}
