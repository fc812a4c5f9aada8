package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileSettingsStore persists settings as a YAML document
type FileSettingsStore struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileSettingsStore creates a store backed by the document at path
func NewFileSettingsStore(path string, logger *zap.Logger) *FileSettingsStore {
	return &FileSettingsStore{path: path, logger: logger}
}

// Path returns the settings document path
func (s *FileSettingsStore) Path() string {
	return s.path
}

// Load reads the document. A missing document yields the defaults; an unreadable
// or corrupt one yields the defaults and a warning.
func (s *FileSettingsStore) Load() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return domain.DefaultSettings()
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml") // JSON documents parse as YAML too

	if err := v.ReadInConfig(); err != nil {
		s.logger.Warn("Settings document unreadable, using defaults",
			zap.String("path", s.path),
			zap.Error(err))
		return domain.DefaultSettings()
	}

	// viper keys are case-insensitive, so hand-edited documents may use any case
	values := make(map[string]string)
	for _, key := range []string{domain.SettingKeyVideoQuality, domain.SettingKeyAudioBitrate} {
		if v.IsSet(key) {
			values[key] = v.GetString(key)
		}
	}
	return domain.SettingsFromMap(values)
}

// Save replaces the document atomically: it is written to a temporary file in the
// same directory, synced, then renamed over the old one
func (s *FileSettingsStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace settings: %w", err)
	}

	s.logger.Info("Settings saved",
		zap.String("path", s.path),
		zap.String("video_quality", settings.VideoQuality),
		zap.String("audio_bitrate", settings.AudioBitrate))
	return nil
}

var _ domain.SettingsStore = (*FileSettingsStore)(nil)
