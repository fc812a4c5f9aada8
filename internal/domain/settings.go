package domain

import (
	"strings"
)

// Settings holds the user preferences applied when a request does not override them
type Settings struct {
	VideoQuality string `json:"videoQuality" mapstructure:"videoQuality" yaml:"videoQuality"`
	AudioBitrate string `json:"audioBitrate" mapstructure:"audioBitrate" yaml:"audioBitrate"`
}

// Settings document keys
const (
	SettingKeyVideoQuality = "videoQuality"
	SettingKeyAudioBitrate = "audioBitrate"
)

// Defaults used whenever a stored preference is unset or unrecognized
const (
	DefaultVideoQuality = "best"
	DefaultAudioBitrate = "192K"
)

// SettingsStore persists Settings as a single document.
// Load never fails: a missing or unreadable document yields DefaultSettings.
type SettingsStore interface {
	Load() Settings
	Save(settings Settings) error
}

var audioBitrates = map[string]string{
	"64":   "64K",
	"96":   "96K",
	"128":  "128K",
	"160":  "160K",
	"192":  "192K",
	"256":  "256K",
	"320":  "320K",
	"best": "0",
}

// DefaultSettings returns the settings used when nothing is persisted
func DefaultSettings() Settings {
	return Settings{
		VideoQuality: DefaultVideoQuality,
		AudioBitrate: DefaultAudioBitrate,
	}
}

// ToMap flattens settings into the persisted key/value form
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		SettingKeyVideoQuality: s.VideoQuality,
		SettingKeyAudioBitrate: s.AudioBitrate,
	}
}

// SettingsFromMap builds settings from persisted key/values, keeping defaults for missing keys
func SettingsFromMap(values map[string]string) Settings {
	s := DefaultSettings()
	if v, ok := values[SettingKeyVideoQuality]; ok && strings.TrimSpace(v) != "" {
		s.VideoQuality = strings.TrimSpace(v)
	}
	if v, ok := values[SettingKeyAudioBitrate]; ok && strings.TrimSpace(v) != "" {
		s.AudioBitrate = strings.TrimSpace(v)
	}
	return s
}

// Merge overlays the non-empty fields of update on top of s
func (s Settings) Merge(update Settings) Settings {
	if strings.TrimSpace(update.VideoQuality) != "" {
		s.VideoQuality = strings.TrimSpace(update.VideoQuality)
	}
	if strings.TrimSpace(update.AudioBitrate) != "" {
		s.AudioBitrate = strings.TrimSpace(update.AudioBitrate)
	}
	return s
}

// ResolveVideoQuality returns the maximum video height for the stored preference,
// or 0 for "best available". Unset or unrecognized preferences resolve to 0.
func ResolveVideoQuality(s Settings) int {
	height, ok := knownResolutions[normalizeResolution(s.VideoQuality)]
	if !ok {
		return 0
	}
	return height
}

// ResolveAudioBitrate returns the yt-dlp --audio-quality value for the stored preference
func ResolveAudioBitrate(s Settings) string {
	key := strings.ToLower(strings.TrimSpace(s.AudioBitrate))
	key = strings.TrimSuffix(strings.TrimSuffix(key, "kbps"), "k")
	if v, ok := audioBitrates[key]; ok {
		return v
	}
	return DefaultAudioBitrate
}
