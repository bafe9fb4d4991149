package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/session"
)

func init() {
	color.NoColor = true
}

// execute runs the root command against dir and returns combined output.
func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(append(args, "-C", dir))
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return buf.String(), err
}

func seedProgress(t *testing.T, dir string, ids ...string) {
	t.Helper()
	ctx := context.Background()
	sess, err := session.Open(session.Options{ProjectDir: dir, Logger: zap.NewNop()})
	require.NoError(t, err)
	require.NoError(t, sess.Start(ctx))
	for _, id := range ids {
		_, err := sess.Machine.ToggleValue(id)
		require.NoError(t, err)
	}
	require.NoError(t, sess.Machine.SetPrioritizedValues(ids))
	require.NoError(t, sess.Machine.SaveReflection(ids[0], "It shows up in how I treat people."))
	require.NoError(t, sess.Close(ctx))
}

func TestStatusFreshProject(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Introduction (1 of 4)")
	assert.Contains(t, out, "anonymous")
	assert.Contains(t, out, "Selection is open")
	_, err = os.Stat(filepath.Join(dir, ".compass", "config.yaml"))
	assert.NoError(t, err)
}

func TestStatusShowsSeededProgress(t *testing.T) {
	dir := t.TempDir()
	seedProgress(t, dir, "courage", "joy")
	out, err := execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Reflection (4 of 4)")
	assert.Contains(t, out, "1. Courage  2. Joy")
	assert.Contains(t, out, "complete")
}

func TestValuesCommand(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "values")
	require.NoError(t, err)
	assert.Contains(t, out, "Honesty")
	assert.Contains(t, out, "Learning")

	out, err = execute(t, t.TempDir(), "", "values", "--category", "growth")
	require.NoError(t, err)
	assert.Contains(t, out, "Learning")
	assert.NotContains(t, out, "Honesty")

	_, err = execute(t, t.TempDir(), "", "values", "--category", "nope")
	assert.ErrorContains(t, err, "unknown category")
}

func TestLoginGrantsFeatureAndLogout(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, dir, "", "login", "ada", "--feature", "ai_insights")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as ada")
	assert.Contains(t, out, "ai_insights")

	out, err = execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "ada (premium)")
	assert.Contains(t, out, "(1 of 5)")

	out, err = execute(t, dir, "", "login", "ada", "--revoke", "ai_insights")
	require.NoError(t, err)
	assert.NotContains(t, out, "features")

	out, err = execute(t, dir, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	out, err = execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")
}

func TestLoginRequiresUser(t *testing.T) {
	_, err := execute(t, t.TempDir(), "", "login")
	assert.Error(t, err)
}

func TestResetRequiresConfirmation(t *testing.T) {
	dir := t.TempDir()
	seedProgress(t, dir, "courage")

	out, err := execute(t, dir, "n\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled.")
	out, err = execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "1  Courage")

	out, err = execute(t, dir, "y\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Assessment reset.")
	out, err = execute(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Introduction (1 of 4)")
}

func TestResetYesSkipsPrompt(t *testing.T) {
	dir := t.TempDir()
	seedProgress(t, dir, "joy")
	out, err := execute(t, dir, "", "reset", "--yes")
	require.NoError(t, err)
	assert.NotContains(t, out, "Continue?")
	assert.Contains(t, out, "Assessment reset.")
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	seedProgress(t, dir, "learning")
	target := filepath.Join(dir, "values.html")
	out, err := execute(t, dir, "", "export", "--format", "html", "--out", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Report written to "+target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<strong>Learning</strong>")

	_, err = execute(t, dir, "", "export", "--format", "pdf")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestConfirmAction(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			assert.Equal(t, tt.want, confirmAction(strings.NewReader(tt.input), &out))
			assert.Contains(t, out.String(), "[y/N]")
		})
	}
}
