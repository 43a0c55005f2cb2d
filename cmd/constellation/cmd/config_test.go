package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/constellation-sdi/constellation/configs"
	"github.com/constellation-sdi/constellation/internal/config"
)

func TestConfigInit_WritesTemplate(t *testing.T) {
	// Given: no configuration file
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "constellation.yaml")

	// When: running config init
	out, err := execute(t, "--config", path, "config", "init")

	// Then: the template is written
	require.NoError(t, err)
	assert.Contains(t, out, "Created configuration")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "init")

	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(env.config)
	require.NoError(t, err)
	assert.Equal(t, testConfig, string(data))
}

func TestConfigInit_ForceBacksUpAndRestoreBringsBack(t *testing.T) {
	// Given: an existing configuration
	env := newTestEnv(t)

	// When: forcing init
	out, err := env.run(t, "config", "init", "--force")

	// Then: the old file is kept as a backup
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")
	backups, err := config.ListBackups(env.config)
	require.NoError(t, err)
	require.Len(t, backups, 1)

	// When: restoring the newest backup
	out, err = env.run(t, "config", "restore")

	// Then: the original content is back
	require.NoError(t, err)
	assert.Contains(t, out, "Restored")
	data, err := os.ReadFile(env.config)
	require.NoError(t, err)
	assert.Equal(t, testConfig, string(data))
}

func TestConfigRestore_NoBackups(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "config", "restore")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backups")
}

func TestConfigPath_PrintsSelectedFile(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "path")

	require.NoError(t, err)
	assert.Equal(t, env.config, strings.TrimSpace(out))
}

func TestConfigShow_JSONResolvesPaths(t *testing.T) {
	// Given: a configuration with relative paths
	env := newTestEnv(t)

	// When: showing it as JSON
	out, err := env.run(t, "config", "show", "--json")

	// Then: paths are resolved against the config file
	require.NoError(t, err)
	var shown config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, filepath.Join(env.dir, "indexes"), shown.ConfigDir)
	require.Len(t, shown.Sources, 1)
	assert.Equal(t, filepath.Join(env.dir, "records"), shown.Sources[0].Path)
	assert.Len(t, shown.Services, 2)
}

func TestConfigShow_YAML(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "# "+env.config)
	assert.Contains(t, out, "config_dir:")
	assert.Contains(t, out, "specification: csw")
}
