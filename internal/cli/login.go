package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLoginCommand creates the 'compass login' command
func newLoginCommand(opts *options) *cobra.Command {
	var grant []string
	var revoke []string

	cmd := &cobra.Command{
		Use:   "login <user>",
		Short: "Sign in, creating the account if needed",
		Long: `Sign in as a local account. Signed-in progress is kept in the sqlite
store, separate from anonymous progress.

Examples:
  compass login ada
  compass login ada --feature ai_insights
  compass login ada --revoke ai_insights`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := opts.openAccounts()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			user, err := provider.Login(ctx, args[0])
			if err != nil {
				return err
			}
			for _, feature := range grant {
				if err := provider.Grant(ctx, user.ID, feature); err != nil {
					return err
				}
			}
			for _, feature := range revoke {
				if err := provider.Revoke(ctx, user.ID, feature); err != nil {
					return err
				}
			}
			scheme := newColorScheme()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", scheme.ok.Sprint(user.ID))
			if current, ok := provider.CurrentUser(); ok && len(current.Features) > 0 {
				scheme.field(cmd.OutOrStdout(), "features", current.Features)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&grant, "feature", nil, "Grant a feature to the account (repeatable)")
	cmd.Flags().StringSliceVar(&revoke, "revoke", nil, "Remove a feature from the account (repeatable)")

	return cmd
}

// newLogoutCommand creates the 'compass logout' command
func newLogoutCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of the current account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := opts.openAccounts()
			if err != nil {
				return err
			}
			if err := provider.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}
