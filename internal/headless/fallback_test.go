package headless

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicholasgeorgeson-prog/AEGIS-sub003/internal/config"
)

func TestEnsureProfileDirUsesConfiguredLocation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profile")
	a := New(config.BrowserConfig{ProfileDir: dir}, zap.NewNop())

	got, err := a.ensureProfileDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// A persistent profile survives Close so ambient SSO carries across runs.
	require.NoError(t, a.Close())
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestEnsureProfileDirIsStableAcrossCalls(t *testing.T) {
	a := New(config.BrowserConfig{ProfileDir: filepath.Join(t.TempDir(), "p")}, zap.NewNop())
	first, err := a.ensureProfileDir()
	require.NoError(t, err)
	second, err := a.ensureProfileDir()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCloseRemovesOnlyTemporaryProfiles(t *testing.T) {
	a := New(config.BrowserConfig{}, zap.NewNop())

	// Force the temp fallback regardless of the host's home directory.
	tmp, err := os.MkdirTemp("", "aegis-browser-profile-")
	require.NoError(t, err)
	a.mu.Lock()
	a.profileDir = tmp
	a.profileIsTemp = true
	a.mu.Unlock()

	require.NoError(t, a.Close())
	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}
