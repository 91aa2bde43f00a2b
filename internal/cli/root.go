// Package cli provides the dayplan command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the dayplan root command. version is shown by
// --version.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "dayplan",
		Short: "Organize a day of tasks into a shareable calendar",
		Long: `dayplan turns a list of tasks into a planned day using a scheduling model,
stores the result as an iCalendar document behind an unguessable link, and
serves it to calendar apps.

Running without a subcommand starts the HTTP server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newPlanCommand(),
		newLinkCommand(),
	)
	return root
}
