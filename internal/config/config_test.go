package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recdb.toml")
	cfg := &Config{Engine: EngineConfig{
		DataRoot:    "/var/lib/recdb",
		DefaultDB:   "shop",
		IntWidth:    12,
		KeepBackups: false,
	}}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefaultsIntWidthWhenUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recdb.toml")
	require.NoError(t, Save(path, &Config{Engine: EngineConfig{DataRoot: "/data"}}))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.Engine.IntWidth)
}
