package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/session"
)

// newStatusCommand creates the 'compass status' command
func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show assessment progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(sess *session.Session) error {
				printStatus(cmd, sess)
				return nil
			})
		},
	}
}

func printStatus(cmd *cobra.Command, sess *session.Session) {
	out := cmd.OutOrStdout()
	scheme := newColorScheme()
	machine := sess.Machine
	names := func(ids []string) string {
		if len(ids) == 0 {
			return scheme.muted.Sprint("none")
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = sess.Catalog.Name(id)
		}
		return strings.Join(parts, ", ")
	}

	fmt.Fprintln(out, scheme.title.Sprint("Values assessment"))
	current := machine.CurrentStep()
	scheme.field(out, "step", fmt.Sprintf("%s (%d of %d)", current, current, machine.TotalSteps()))

	account := scheme.muted.Sprint("anonymous")
	if user, ok := sess.Auth.CurrentUser(); ok {
		tier := scheme.warn.Sprint("standard")
		if machine.IsPremium() {
			tier = scheme.ok.Sprint("premium")
		}
		name := user.Name
		if name == "" {
			name = user.ID
		}
		account = fmt.Sprintf("%s (%s)", name, tier)
	}
	scheme.field(out, "account", account)
	scheme.field(out, "storage", sess.Config.Backend())
	scheme.field(out, "selected", fmt.Sprintf("%d  %s", len(machine.SelectedValues()), names(machine.SelectedValues())))

	ranked := machine.PrioritizedValues()
	ranking := make([]string, len(ranked))
	for i, id := range ranked {
		ranking[i] = fmt.Sprintf("%d. %s", i+1, sess.Catalog.Name(id))
	}
	if len(ranking) == 0 {
		scheme.field(out, "ranking", scheme.muted.Sprint("none"))
	} else {
		scheme.field(out, "ranking", strings.Join(ranking, "  "))
	}
	scheme.field(out, "reflections", machine.ReflectionCount())

	next := current + 1
	switch {
	case int(next) > machine.TotalSteps():
		scheme.field(out, "next", scheme.ok.Sprint("complete"))
	case machine.CanEnter(next):
		scheme.field(out, "next", scheme.ok.Sprintf("%s is open", next))
	default:
		scheme.field(out, "next", scheme.warn.Sprintf("%s is locked", next))
	}
	if next == assessment.StepInsights && !machine.IsPremium() {
		fmt.Fprintln(out, scheme.muted.Sprint("  AI Insights need an account with the ai_insights feature."))
	}
}
