package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origDir := getConfigDirFunc
	origPath := getConfigPathFunc
	getConfigDirFunc = func() (string, error) { return dir, nil }
	getConfigPathFunc = func() (string, error) { return filepath.Join(dir, "config.json"), nil }
	t.Cleanup(func() {
		getConfigDirFunc = origDir
		getConfigPathFunc = origPath
	})

	return dir
}

func TestGlobalConfig_SaveLoadRoundTrip(t *testing.T) {
	withTempConfigDir(t)

	saved := &GlobalConfig{APIKey: "test-key", APIURL: "http://localhost:8080"}
	require.NoError(t, SaveGlobalConfig(saved))

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.APIKey, loaded.APIKey)
	assert.Equal(t, saved.APIURL, loaded.APIURL)
}

func TestGlobalConfig_LoadMissingReturnsNil(t *testing.T) {
	withTempConfigDir(t)

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestGlobalConfig_FilePermissions(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "k", APIURL: "u"}))

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestGlobalConfig_SaveNil(t *testing.T) {
	withTempConfigDir(t)
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestGlobalConfig_Delete(t *testing.T) {
	withTempConfigDir(t)

	require.NoError(t, SaveGlobalConfig(&GlobalConfig{APIKey: "k", APIURL: "u"}))
	require.NoError(t, DeleteGlobalConfig())

	loaded, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op
	assert.NoError(t, DeleteGlobalConfig())
}

func TestGlobalConfig_LoadCorruptFile(t *testing.T) {
	dir := withTempConfigDir(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0600))

	_, err := LoadGlobalConfig()
	assert.Error(t, err)
}
