package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:8741", cfg.ListenAddr)
}

func TestLoadOverridesAndDerivedDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/mailsift\nmodel: qwen3-0.6b-instruct\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/mailsift", cfg.DataDir)
	assert.Equal(t, "qwen3-0.6b-instruct", cfg.Model)
	// The cache path default follows the configured data dir.
	assert.Equal(t, filepath.Join("/srv/mailsift", "verdicts.db"), cfg.CachePath)
	assert.Equal(t, "127.0.0.1:8741", cfg.ListenAddr)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestServerURL(t *testing.T) {
	cfg := Config{ListenAddr: "127.0.0.1:9000"}
	assert.Equal(t, "ws://127.0.0.1:9000/ws", cfg.ServerURL())
}
