package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/compass/internal/metrics"
	"github.com/kingrea/compass/internal/tui"
)

// newRunCommand creates the 'compass run' command
func newRunCommand(opts *options) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the interactive wizard",
		Long: `Launch the interactive values wizard.

Examples:
  # Start or resume the assessment
  compass run

  # Expose Prometheus metrics while the wizard runs
  compass run --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, opts, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics on this address (overrides metrics.listen)")

	return cmd
}

// runWizard runs the bubbletea program alongside the accounts watcher and the
// optional metrics endpoint. Both stop when the program exits.
func runWizard(cmd *cobra.Command, opts *options, metricsAddr string) error {
	sess, err := opts.openSession()
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = sess.Config.MetricsListen()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app := tui.NewApp(sess, tui.WithContext(ctx))
	defer app.Close()
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sess.WatchAccounts(gctx, func(premium bool) {
			program.Send(tui.EntitlementChangedMsg{Premium: premium})
		})
		if err != nil {
			sess.Logger.Warn("accounts watcher stopped", zap.Error(err))
		}
		return nil
	})
	if metricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, metricsAddr, sess.Registry, sess.Logger.Named("metrics"))
		})
	}

	_, runErr := program.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}
	cancel()
	waitErr := g.Wait()
	closeErr := sess.Close(context.Background())
	return errors.Join(runErr, waitErr, closeErr)
}
