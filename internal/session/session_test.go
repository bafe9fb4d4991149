package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kingrea/compass/internal/assessment"
	"github.com/kingrea/compass/internal/export"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps an opener goroutine per pool until Close returns.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

var fixedNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func open(t *testing.T, dir string) *Session {
	t.Helper()
	return openAt(t, dir, fixedNow)
}

func openAt(t *testing.T, dir string, now time.Time) *Session {
	t.Helper()
	s, err := Open(Options{ProjectDir: dir, Logger: zap.NewNop(), Clock: func() time.Time { return now }})
	require.NoError(t, err)
	return s
}

func closeSession(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Close(context.Background()))
}

func TestOpenCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s := open(t, dir)
	defer closeSession(t, s)
	for _, p := range []string{"config.yaml", "logs", "state", "exports"} {
		_, err := os.Stat(filepath.Join(dir, ".compass", p))
		assert.NoError(t, err, p)
	}
}

func TestAnonymousProgressSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := open(t, dir)
	require.NoError(t, s.Start(ctx))
	assert.False(t, s.Machine.IsPremium())
	assert.Equal(t, 4, s.Machine.TotalSteps())
	_, err := s.Machine.ToggleValue("honesty")
	require.NoError(t, err)
	_, err = s.Machine.ToggleValue("courage")
	require.NoError(t, err)
	require.NoError(t, s.Machine.SetPrioritizedValues([]string{"courage", "honesty"}))
	require.NoError(t, s.Machine.SaveReflection("courage", "Speaking up at work."))
	closeSession(t, s)

	s = open(t, dir)
	defer closeSession(t, s)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []string{"honesty", "courage"}, s.Machine.SelectedValues())
	assert.Equal(t, []string{"courage", "honesty"}, s.Machine.PrioritizedValues())
	assert.Equal(t, assessment.StepReflection, s.Machine.CurrentStep())

	lines, total := s.Journey.Tail(50)
	assert.Greater(t, total, 0)
	assert.Contains(t, strings.Join(lines, "\n"), "Selected Honesty")
}

func TestSignedInUsesAccountStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := open(t, dir)
	require.NoError(t, s.Start(ctx))
	_, err := s.Machine.ToggleValue("joy")
	require.NoError(t, err)
	closeSession(t, s)

	s = open(t, dir)
	_, err = s.Auth.Login(ctx, "ada")
	require.NoError(t, err)
	require.NoError(t, s.Auth.Grant(ctx, "ada", assessment.FeatureAIInsights))
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Machine.IsPremium())
	assert.Equal(t, 5, s.Machine.TotalSteps())
	assert.Empty(t, s.Machine.SelectedValues(), "account storage starts empty")
	_, err = s.Machine.ToggleValue("peace")
	require.NoError(t, err)
	closeSession(t, s)

	s = open(t, dir)
	defer closeSession(t, s)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []string{"peace"}, s.Machine.SelectedValues())

	require.NoError(t, s.Auth.Logout(ctx))
	assert.False(t, s.Machine.RefreshEntitlement(ctx))
	assert.Equal(t, 4, s.Machine.TotalSteps())
}

func TestLaterSessionWithSlowerClockStillSaves(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := openAt(t, dir, fixedNow)
	require.NoError(t, s.Start(ctx))
	_, err := s.Machine.ToggleValue("honesty")
	require.NoError(t, err)
	closeSession(t, s)

	s = openAt(t, dir, fixedNow.Add(-time.Minute))
	require.NoError(t, s.Start(ctx))
	_, err = s.Machine.ToggleValue("honesty")
	require.NoError(t, err)
	_, err = s.Machine.ToggleValue("courage")
	require.NoError(t, err)
	closeSession(t, s)

	s = open(t, dir)
	defer closeSession(t, s)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []string{"courage"}, s.Machine.SelectedValues())
}

func TestSwitchingAccountsKeepsProgressApart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s := open(t, dir)
	_, err := s.Auth.Login(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))
	_, err = s.Machine.ToggleValue("honesty")
	require.NoError(t, err)
	require.NoError(t, s.Machine.Flush(ctx))

	_, err = s.Auth.Login(ctx, "bob")
	require.NoError(t, err)
	s.Machine.RefreshEntitlement(ctx)
	assert.Empty(t, s.Machine.SelectedValues(), "the new account starts from its own storage")
	assert.Equal(t, assessment.StepIntroduction, s.Machine.CurrentStep())
	_, err = s.Machine.ToggleValue("courage")
	require.NoError(t, err)
	closeSession(t, s)

	s = open(t, dir)
	defer closeSession(t, s)
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, []string{"courage"}, s.Machine.SelectedValues())

	_, err = s.Auth.Login(ctx, "alice")
	require.NoError(t, err)
	s.Machine.RefreshEntitlement(ctx)
	assert.Equal(t, []string{"honesty"}, s.Machine.SelectedValues())
}

func TestExportWritesReport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := open(t, dir)
	defer closeSession(t, s)
	require.NoError(t, s.Start(ctx))
	_, err := s.Machine.ToggleValue("learning")
	require.NoError(t, err)
	require.NoError(t, s.Machine.SetPrioritizedValues([]string{"learning"}))

	path, err := s.Export(ctx, "", export.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".compass", "exports", "values-assessment-20260402-100000.md"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1. **Learning**")
	assert.Contains(t, string(data), "## Next Steps")

	report := s.Report(ctx)
	assert.Empty(t, report.Insights, "insights need the premium feature")
}

func TestOpenRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".compass"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".compass", "config.yaml"), []byte("storage:\n  backend: s3\n"), 0o644))
	_, err := Open(Options{ProjectDir: dir, Logger: zap.NewNop()})
	assert.Error(t, err)
}
