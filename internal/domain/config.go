package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Download     DownloadConfig     `mapstructure:"download" yaml:"download"`
	Settings     SettingsConfig     `mapstructure:"settings" yaml:"settings"`
	Notification NotificationConfig `mapstructure:"notification" yaml:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir                 string        `mapstructure:"base_dir" yaml:"base_dir"`
	YTDLPBinary             string        `mapstructure:"ytdlp_binary" yaml:"ytdlp_binary"`
	ExtraArgs               []string      `mapstructure:"extra_args" yaml:"extra_args"`
	MetadataTimeout         time.Duration `mapstructure:"metadata_timeout" yaml:"metadata_timeout"`
	JobTimeout              time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	MaxConcurrentJobs       int           `mapstructure:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	CancelOnDisconnect      bool          `mapstructure:"cancel_on_disconnect" yaml:"cancel_on_disconnect"`
	PreserveFailedPlaylists bool          `mapstructure:"preserve_failed_playlists" yaml:"preserve_failed_playlists"`
	ArtifactTTL             time.Duration `mapstructure:"artifact_ttl" yaml:"artifact_ttl"`
	StaleAfter              time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	CleanupInterval         time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// JobsDir is the parent of every per-job working directory
func (c DownloadConfig) JobsDir() string {
	return filepath.Join(c.BaseDir, "jobs")
}

// FailedDir holds output preserved for manual recovery
func (c DownloadConfig) FailedDir() string {
	return filepath.Join(c.BaseDir, "failed")
}

// LogsDir holds the category and process logs
func (c DownloadConfig) LogsDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// ConfigDir holds the persisted settings document
func (c DownloadConfig) ConfigDir() string {
	return filepath.Join(c.BaseDir, "config")
}

// SettingsConfig selects where user settings are persisted
type SettingsConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // file, sqlite
	Path    string `mapstructure:"path" yaml:"path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Method  string `mapstructure:"method" yaml:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"`           // json, console
	OutputPath string `mapstructure:"output_path" yaml:"output_path"` // stdout, stderr, or file path
}

// Settings backends
const (
	SettingsBackendFile   = "file"
	SettingsBackendSQLite = "sqlite"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 5000,
		},
		Download: DownloadConfig{
			BaseDir:                 "$HOME/Downloads/mediagrab",
			YTDLPBinary:             "yt-dlp",
			MetadataTimeout:         60 * time.Second,
			JobTimeout:              2 * time.Hour,
			MaxConcurrentJobs:       4,
			CancelOnDisconnect:      true,
			PreserveFailedPlaylists: true,
			ArtifactTTL:             30 * time.Minute,
			StaleAfter:              6 * time.Hour,
			CleanupInterval:         10 * time.Minute,
		},
		Settings: SettingsConfig{
			Backend: SettingsBackendFile,
			Path:    "$HOME/Downloads/mediagrab/config/settings.yaml",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
