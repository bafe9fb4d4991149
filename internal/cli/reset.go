package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/compass/internal/session"
)

// newResetCommand creates the 'compass reset' command
func newResetCommand(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all assessment progress",
		Long: `Clear every selection, ranking and reflection, in memory and in storage.

Examples:
  # Clear progress (requires confirmation)
  compass reset

  # Clear progress without prompting
  compass reset --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(output, "WARNING: This will delete ALL assessment progress.\n")
				if !confirmAction(cmd.InOrStdin(), output) {
					fmt.Fprintf(output, "Operation cancelled.\n")
					return nil
				}
			}
			return opts.withSession(cmd.Context(), func(sess *session.Session) error {
				if err := sess.Machine.Restart(cmd.Context()); err != nil {
					return fmt.Errorf("reset assessment: %w", err)
				}
				fmt.Fprintf(output, "%s\n", newColorScheme().ok.Sprint("Assessment reset."))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

// confirmAction prompts for y/N and reads one line from in.
func confirmAction(in io.Reader, out io.Writer) bool {
	fmt.Fprintf(out, "Continue? [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
