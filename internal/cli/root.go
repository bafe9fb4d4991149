package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/compass/internal/auth"
	"github.com/kingrea/compass/internal/config"
	"github.com/kingrea/compass/internal/session"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// options holds flags shared by every command.
type options struct {
	projectDir string
}

// NewRootCommand creates and returns the root cobra command for compass
func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "compass",
		Short: "Discover, rank and reflect on your core values",
		Long: `Compass walks you through a short values assessment: choose the values
that resonate with you, put them in order, and reflect on what they mean.

Progress is stored under .compass in the project directory. Signed-in
accounts with the ai_insights feature unlock an extra insights step.

Running compass without a subcommand launches the interactive wizard.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWizard(cmd, opts, "")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.projectDir, "project", "C", "", "Project directory holding .compass (defaults to the working directory)")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newResetCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newValuesCommand())
	cmd.AddCommand(newLoginCommand(opts))
	cmd.AddCommand(newLogoutCommand(opts))

	return cmd
}

func (o *options) dir() (string, error) {
	if o.projectDir != "" {
		return o.projectDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

func (o *options) openSession() (*session.Session, error) {
	dir, err := o.dir()
	if err != nil {
		return nil, err
	}
	return session.Open(session.Options{ProjectDir: dir})
}

// withSession opens and starts a session, runs fn, then closes the session
// so pending saves reach storage before the command returns.
func (o *options) withSession(ctx context.Context, fn func(*session.Session) error) (err error) {
	sess, err := o.openSession()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, sess.Close(context.Background()))
	}()
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start assessment: %w", err)
	}
	return fn(sess)
}

// openAccounts loads only what account commands need.
func (o *options) openAccounts() (*auth.Provider, error) {
	dir, err := o.dir()
	if err != nil {
		return nil, err
	}
	if err := config.InitCompassDir(dir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	return auth.NewProvider(cfg.AccountsPath())
}
