package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/hastewatch/pkg/constants"
	"github.com/agentstation/hastewatch/pkg/errors"
)

// isolate points HOME at an empty directory so a developer's own
// ~/.hastewatch.yaml cannot leak into the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultIndexesFile, config.IndexesFile)
	assert.Equal(t, "auto", config.LogFormat)
	assert.Equal(t, "stderr", config.LogOutput)
	assert.Empty(t, config.LogLevel)
	assert.Empty(t, config.Host)
	assert.Zero(t, config.Port)
}

func TestLoadConfigEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("HASTEWATCH_VERBOSE", "true")
	t.Setenv("HASTEWATCH_PORT", "7001")
	t.Setenv("HASTEWATCH_HOST", "0.0.0.0")
	t.Setenv("HASTEWATCH_MAX_OPEN_FILES", "12")
	t.Setenv("HASTEWATCH_INDEXES", "/etc/hastewatch/indexes.yaml")
	t.Setenv("HASTEWATCH_LOG_LEVEL", "error")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, config.Verbose)
	assert.Equal(t, 7001, config.Port)
	assert.Equal(t, "0.0.0.0", config.Host)
	assert.Equal(t, 12, config.MaxOpenFiles)
	assert.Equal(t, "/etc/hastewatch/indexes.yaml", config.IndexesFile)
	assert.Equal(t, "error", config.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "hw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7100\nmax_processes: 3\nindexes: other.yaml\n"), 0o644))

	config, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, path, config.ConfigFile)
	assert.Equal(t, 7100, config.Port)
	assert.Equal(t, 3, config.MaxProcesses)
	assert.Equal(t, "other.yaml", config.IndexesFile)
}

func TestLoadConfigFileEnvironmentWins(t *testing.T) {
	isolate(t)
	t.Setenv("HASTEWATCH_PORT", "7200")
	path := filepath.Join(t.TempDir(), "hw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 7100\n"), 0o644))

	config, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7200, config.Port)
}

func TestLoadConfigFileMalformed(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "hw.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [\n"), 0o644))

	_, err := LoadConfigFile(path)
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadConfigHomeFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".hastewatch.yaml"), []byte("quiet: true\n"), 0o644))

	config, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, config.Quiet)
	assert.Equal(t, filepath.Join(home, ".hastewatch.yaml"), config.ConfigFile)
}
