package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vireo.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[application]
name = "testbed"
width = 800
height = 600

[renderer]
frames_in_flight = 3
max_parallelism = 4
fence_timeout_ms = 250

[memory]
budget_fraction = 0.5
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "testbed", cfg.Application.Name)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, 4, cfg.Renderer.MaxParallelism)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.FenceTimeout())
	assert.Equal(t, 0.5, cfg.Memory.BudgetFraction)
	// untouched keys keep their defaults
	assert.Equal(t, uint64(64<<20), cfg.Memory.BlockSize)
	assert.True(t, cfg.Renderer.PreferMailbox)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"frames in flight": "[renderer]\nframes_in_flight = 1\n",
		"parallelism":      "[renderer]\nmax_parallelism = -1\n",
		"budget":           "[memory]\nbudget_fraction = 1.5\n",
		"syntax":           "[renderer\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, WarnLevel, ParseLogLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLogLevel("chatty"))
}
