package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasSaneValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4, cfg.Retry.Attempts)
	assert.Equal(t, "out", cfg.Storage.OutDir)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckgen.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
out_dir = "/tmp/custom-out"

[retry]
attempts = 7
`), 0o644))

	cfg := Load(path)
	assert.Equal(t, "/tmp/custom-out", cfg.Storage.OutDir)
	assert.Equal(t, 7, cfg.Retry.Attempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deckgen.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nout_dir = \"/tmp/file-out\"\n"), 0o644))
	t.Setenv("DECKGEN_OUT_DIR", "/tmp/env-out")
	cfg := Load(path)
	assert.Equal(t, "/tmp/env-out", cfg.Storage.OutDir)
}

func TestLoad_NoCacheEnvDisablesCache(t *testing.T) {
	t.Setenv("DECKGEN_NO_CACHE", "1")
	cfg := Load("")
	assert.False(t, cfg.Cache.Enabled)
}
