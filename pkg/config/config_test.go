package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfigCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rimeime.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.FileExists(t, path)
}

func TestInitConfigLoadsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rimeime.toml")

	cfg := DefaultConfig()
	cfg.Server.MaxLimit = 7
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Server.MaxLimit)
}

func TestUpdatePersistsOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rimeime.toml")
	cfg := DefaultConfig()
	require.NoError(t, SaveConfig(cfg, path))

	newMax := 42
	require.NoError(t, cfg.Update(path, &newMax, nil, nil, nil))

	reloaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.Server.MaxLimit)
	assert.Equal(t, DefaultConfig().Server.MinPrefix, reloaded.Server.MinPrefix)
}
