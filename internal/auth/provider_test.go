package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleAccounts = `current: ada
users:
  - id: ada
    name: Ada Lovelace
    features: [ai_insights, ai_insights, " "]
  - id: grace
    name: Grace Hopper
  - id: ""
`

func writeAccounts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProviderReadsAccounts(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(writeAccounts(t, sampleAccounts))
	require.NoError(t, err)

	assert.True(t, p.IsAuthenticated(ctx))
	user, ok := p.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", user.Name)
	assert.Equal(t, []string{"ai_insights"}, user.Features)
	assert.Len(t, p.Users(), 2)

	owner, ok := p.OwnerID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "ada", owner)

	has, err := p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = p.HasFeature(ctx, "export_pdf")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProviderMissingFileIsAnonymous(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(filepath.Join(t.TempDir(), "accounts.yaml"))
	require.NoError(t, err)
	assert.False(t, p.IsAuthenticated(ctx))
	has, err := p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProviderUnknownCurrentIsAnonymous(t *testing.T) {
	p, err := NewProvider(writeAccounts(t, "current: nobody\nusers: []\n"))
	require.NoError(t, err)
	assert.False(t, p.IsAuthenticated(context.Background()))
}

func TestProviderMalformedFileSurfacesError(t *testing.T) {
	ctx := context.Background()
	path := writeAccounts(t, "users: [oops")
	p, err := NewProvider(path)
	require.NoError(t, err)
	_, err = p.HasFeature(ctx, "ai_insights")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(sampleAccounts), 0o644))
	require.NoError(t, p.Reload())
	has, err := p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestProviderReloadInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	path := writeAccounts(t, sampleAccounts)
	p, err := NewProvider(path)
	require.NoError(t, err)
	has, err := p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, os.WriteFile(path, []byte("current: ada\nusers:\n  - id: ada\n"), 0o644))
	has, err = p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.True(t, has, "cached until reload")

	require.NoError(t, p.Reload())
	has, err = p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProviderLoginLogoutGrant(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	p, err := NewProvider(path)
	require.NoError(t, err)

	user, err := p.Login(ctx, "linus")
	require.NoError(t, err)
	assert.Equal(t, "linus", user.ID)
	assert.True(t, p.IsAuthenticated(ctx))

	has, err := p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.False(t, has)
	require.NoError(t, p.Grant(ctx, "linus", "ai_insights"))
	has, err = p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.True(t, has)

	// A second provider sees the persisted state.
	other, err := NewProvider(path)
	require.NoError(t, err)
	assert.True(t, other.IsAuthenticated(ctx))

	require.NoError(t, p.Revoke(ctx, "linus", "ai_insights"))
	has, err = p.HasFeature(ctx, "ai_insights")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, p.Logout(ctx))
	assert.False(t, p.IsAuthenticated(ctx))
	assert.ErrorIs(t, p.Grant(ctx, "nobody", "ai_insights"), ErrUnknownUser)
	_, err = p.Login(ctx, "  ")
	assert.Error(t, err)
}

func TestProviderWatchReloadsOnChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	path := writeAccounts(t, "users: []\n")
	p, err := NewProvider(path)
	require.NoError(t, err)

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx, func() { changed <- struct{}{} }) }()

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(sampleAccounts), 0o644))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
	assert.True(t, p.IsAuthenticated(context.Background()))

	cancel()
	require.NoError(t, <-done)
}
