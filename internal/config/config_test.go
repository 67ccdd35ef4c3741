package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Fetch.InlineMaxAttempts)
	assert.Equal(t, time.Second, cfg.Fetch.InlineSleepInterval)
	assert.Equal(t, 100, cfg.Client.MaxBatch["update_rosters"])
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  mode: real
  base_url: https://biglearn.example.com
  max_batch:
    record_responses: 250
fetch:
  inline_sleep_interval: 250ms
algorithms:
  assignment_pes: tesr
database: `+filepath.Join(dir, "db.sqlite")+`
`), 0644))

	t.Setenv("RECSYNC_INLINE_MAX_ATTEMPTS", "5")
	t.Setenv("RECSYNC_TOKEN", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeReal, cfg.Client.Mode)
	assert.Equal(t, 250, cfg.Client.MaxBatch["record_responses"])
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.InlineSleepInterval)
	assert.Equal(t, 5, cfg.Fetch.InlineMaxAttempts)
	assert.Equal(t, "secret", cfg.Client.Token)
	assert.Equal(t, "tesr", cfg.Algorithms.Algorithm("fetch_assignment_pes"))
	assert.Equal(t, DefaultAlgorithm, cfg.Algorithms.Algorithm("fetch_teacher_clues"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Client.Mode = ModeReal
	cfg.Fetch.InlineMaxAttempts = 0
	cfg.Client.MaxBatch["record_responses"] = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
	assert.Contains(t, err.Error(), "inline_max_attempts")
	assert.Contains(t, err.Error(), "max_batch.record_responses")
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("RECSYNC_TIMEOUT", "soon")
	_, err := Load("")
	assert.Error(t, err)
}
