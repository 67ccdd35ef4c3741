package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core)

	log.With("component", "transport").Info("request", "access_token", "abc", "operation", "create_course")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["access_token"])
	assert.Equal(t, "create_course", fields["operation"])
	assert.Equal(t, "transport", fields["component"])
}

func TestNewWithFile(t *testing.T) {
	log, err := New(Options{Mode: "production", Level: "debug", File: filepath.Join(t.TempDir(), "recsync.log")})
	require.NoError(t, err)
	log.Debug("hello", "k", 1)
	log.Sync()
}

func TestOddKeyValues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewWithCore(core).Warn("odd", "dangling")
	assert.Equal(t, 1, logs.FilterMessage("odd").Len())
}
