package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/mediagrab-go/internal/domain"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	base := t.TempDir()
	path := writeConfigFile(t, `
server:
  port: 8099
download:
  base_dir: `+base+`
  max_concurrent_jobs: 2
  job_timeout: 30m
  extra_args: ["--cookies", "/tmp/cookies.txt"]
settings:
  backend: sqlite
logging:
  level: debug
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8099, config.Server.Port)
	assert.Equal(t, base, config.Download.BaseDir)
	assert.Equal(t, 2, config.Download.MaxConcurrentJobs)
	assert.Equal(t, 30*time.Minute, config.Download.JobTimeout)
	assert.Equal(t, []string{"--cookies", "/tmp/cookies.txt"}, config.Download.ExtraArgs)
	assert.Equal(t, domain.SettingsBackendSQLite, config.Settings.Backend)
	assert.Equal(t, "debug", config.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, "yt-dlp", config.Download.YTDLPBinary)
	assert.Equal(t, 60*time.Second, config.Download.MetadataTimeout)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 8099\n")
	t.Setenv("MEDIAGRAB_SERVER_PORT", "9100")
	t.Setenv("MEDIAGRAB_DOWNLOAD_MAX_CONCURRENT_JOBS", "7")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, 7, config.Download.MaxConcurrentJobs)
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := writeConfigFile(t, "download:\n  base_dir: ~/grab\nsettings:\n  path: $HOME/grab/s.yaml\n")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "grab"), config.Download.BaseDir)
	assert.Equal(t, filepath.Join(home, "grab", "s.yaml"), config.Settings.Path)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  port: 70000\n"},
		{"zero concurrency", "download:\n  max_concurrent_jobs: 0\n"},
		{"unknown backend", "settings:\n  backend: redis\n"},
		{"empty binary", "download:\n  ytdlp_binary: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, "server: [oops"))
	assert.Error(t, err)
}

func TestValidateConfig_DefaultSettingsPath(t *testing.T) {
	config := domain.DefaultConfig()
	config.Download.BaseDir = "/srv/grab"
	config.Settings.Backend = domain.SettingsBackendSQLite
	config.Settings.Path = ""

	require.NoError(t, validateConfig(config))
	assert.Equal(t, filepath.Join("/srv/grab", "config", "settings.db"), config.Settings.Path)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Download.BaseDir = t.TempDir()
	config.Settings.Path = filepath.Join(config.Download.BaseDir, "settings.yaml")
	config.Server.Port = 8123
	config.Download.ArtifactTTL = 5 * time.Minute

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, loaded.Server.Port)
	assert.Equal(t, 5*time.Minute, loaded.Download.ArtifactTTL)
	assert.Equal(t, config.Download.BaseDir, loaded.Download.BaseDir)
}
