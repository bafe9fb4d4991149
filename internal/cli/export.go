package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/compass/internal/export"
	"github.com/kingrea/compass/internal/session"
)

// newExportCommand creates the 'compass export' command
func newExportCommand(opts *options) *cobra.Command {
	var format string
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a report of the assessment",
		Long: `Write the current assessment as a Markdown or HTML report.

Reports land in .compass/exports unless --out is given.

Examples:
  compass export
  compass export --format html --out values.html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return opts.withSession(cmd.Context(), func(sess *session.Session) error {
				path, err := sess.Export(cmd.Context(), out, parsed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatMarkdown), "Report format: md or html")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to .compass/exports)")

	return cmd
}
