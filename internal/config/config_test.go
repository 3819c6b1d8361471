package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.json"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"strict":true,"track":true,"ignore":{"files":["*.log"]}}`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Strict)
		assert.True(t, cfg.Track)
		assert.Equal(t, []string{"*.log"}, cfg.Ignore.Files)
		assert.Equal(t, "trunk", cfg.DefaultBranch)
	})

	t.Run("track and picky conflict", func(t *testing.T) {
		path := filepath.Join(dir, "both.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"track":true,"picky":true}`), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("OVC_CONFIG", "/tmp/custom.json")
	assert.Equal(t, "/tmp/custom.json", Path())
}
