package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"dayplan/backend/internal/capability"
	"dayplan/backend/internal/config"
)

func newLinkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create and inspect calendar links",
	}
	cmd.AddCommand(newLinkNewCommand(), newLinkParseCommand())
	return cmd
}

func newLinkNewCommand() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Mint a fresh calendar id and print its link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if base == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				base = cfg.PublicBaseURL
			}
			id, err := capability.NewID()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", id, capability.URL(base, id))
			return err
		},
	}
	cmd.Flags().StringVar(&base, "base-url", "", "Public base URL (default from DAYPLAN_HTTP_PUBLIC_BASE_URL)")
	return cmd
}

func newLinkParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <link-or-id>",
		Short: "Print the calendar id contained in a pasted link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := capability.ParseFromInput(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}
}
