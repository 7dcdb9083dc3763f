package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 1000, cfg.PtyGracePeriodMs)
	assert.Equal(t, 800, cfg.SaveDebounceMs)
	assert.True(t, cfg.IsTelemetryEnabled())
}

func TestDurationRepair(t *testing.T) {
	cfg := &Config{PtyGracePeriodMs: -5, SaveDebounceMs: 0}
	assert.Equal(t, time.Second, cfg.GracePeriod())
	assert.Equal(t, 800*time.Millisecond, cfg.SaveDebounce())

	cfg = &Config{PtyGracePeriodMs: 250, SaveDebounceMs: 100}
	assert.Equal(t, 250*time.Millisecond, cfg.GracePeriod())
	assert.Equal(t, 100*time.Millisecond, cfg.SaveDebounce())
}

func TestResolveShell(t *testing.T) {
	cfg := &Config{Shell: "/usr/local/bin/fish"}
	assert.Equal(t, "/usr/local/bin/fish", cfg.ResolveShell())

	cfg = &Config{}
	t.Setenv("SHELL", "/bin/zsh")
	assert.Equal(t, "/bin/zsh", cfg.ResolveShell())

	t.Setenv("SHELL", "")
	assert.Equal(t, "/bin/bash", cfg.ResolveShell())
}
