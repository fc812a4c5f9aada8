package domain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 5000, config.Server.Port)
	assert.Equal(t, "yt-dlp", config.Download.YTDLPBinary)
	assert.Equal(t, 4, config.Download.MaxConcurrentJobs)
	assert.True(t, config.Download.CancelOnDisconnect)
	assert.True(t, config.Download.PreserveFailedPlaylists)
	assert.Equal(t, 30*time.Minute, config.Download.ArtifactTTL)
	assert.Equal(t, SettingsBackendFile, config.Settings.Backend)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestDownloadConfig_Dirs(t *testing.T) {
	c := DownloadConfig{BaseDir: "/srv/grab"}

	assert.Equal(t, filepath.Join("/srv/grab", "jobs"), c.JobsDir())
	assert.Equal(t, filepath.Join("/srv/grab", "failed"), c.FailedDir())
	assert.Equal(t, filepath.Join("/srv/grab", "logs"), c.LogsDir())
	assert.Equal(t, filepath.Join("/srv/grab", "config"), c.ConfigDir())
}
