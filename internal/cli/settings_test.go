package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/latch/internal/ir"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabase, s.Database)
	assert.Empty(t, s.Rules)
	assert.Equal(t, ir.DefaultConfig(), s.Lifecycle)
}

func TestLoadSettings_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", `
db: traces/session.db
rules: ./rules
lifecycle:
  dwell_ready_ms: 60
  conf_high: 0.7
  ready_gesture: wave
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)

	want := ir.DefaultConfig()
	want.DwellReadyMs = 60
	want.ConfHigh = 0.7
	want.ReadyGesture = "wave"
	assert.Equal(t, "traces/session.db", s.Database)
	assert.Equal(t, "./rules", s.Rules)
	assert.Equal(t, want, s.Lifecycle)
}

func TestLoadSettings_WorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "latch.yaml", "db: local.db\n")
	t.Chdir(dir)

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "local.db", s.Database)
}

func TestLoadSettings_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LATCH_DB", "env.db")
	t.Setenv("LATCH_LIFECYCLE_COAST_TIMEOUT_MS", "750")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "env.db", s.Database)
	assert.Equal(t, int64(750), s.Lifecycle.CoastTimeoutMs)
}

func TestLoadSettings_Errors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.yaml", "db: [unterminated\n")
	_, err = LoadSettings(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings")
}
