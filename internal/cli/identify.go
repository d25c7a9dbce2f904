package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reconcile/internal/contact"
	"reconcile/internal/contact/handler"
)

// NewIdentifyCommand creates the identify command.
func NewIdentifyCommand(rootOpts *RootOptions) *cobra.Command {
	req := handler.IdentifyRequest{}
	var email, phone string

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile an email and/or phone number and print the cluster",
		Long: `Run one identify call against the configured store and print the
consolidated contact, in the same shape POST /identify returns.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("email") {
				req.Email = &email
			}
			if cmd.Flags().Changed("phone") {
				req.PhoneNumber = &phone
			}
			return runIdentify(rootOpts, &req, cmd)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")

	return cmd
}

func runIdentify(opts *RootOptions, req *handler.IdentifyRequest, cmd *cobra.Command) error {
	if err := req.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, closeStore, err := opts.openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := contact.NewService(store).Identify(ctx, req.Hint())
	if err != nil {
		return err
	}
	resp := handler.FromSummary(summary)

	if opts.Format == "text" {
		return writeText(cmd.OutOrStdout(), resp)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func writeText(w io.Writer, resp *handler.IdentifyResponse) error {
	c := resp.Contact
	ids := make([]string, len(c.SecondaryContactIDs))
	for i, id := range c.SecondaryContactIDs {
		ids[i] = fmt.Sprint(id)
	}
	_, err := fmt.Fprintf(w, "primary:     %d\nemails:      %s\nphones:      %s\nsecondaries: %s\n",
		c.PrimaryContactID,
		strings.Join(c.Emails, ", "),
		strings.Join(c.PhoneNumbers, ", "),
		strings.Join(ids, ", "),
	)
	return err
}
