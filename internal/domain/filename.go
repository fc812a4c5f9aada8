package domain

import (
	"regexp"
	"strings"
)

// MaxFilenameLength bounds sanitized names, counted in runes
const MaxFilenameLength = 50

// Fallback names for titles that sanitize to nothing
const (
	FallbackVideoName    = "Video"
	FallbackPlaylistName = "Playlist"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\x7F\x{80}-\x{9F}\x{2028}\x{2029}]`)

// SanitizeFilename maps an arbitrary title to a filesystem-safe name of at most
// MaxFilenameLength runes. It returns "" for empty, all-illegal or all-dot input
// ("." and ".." are not names); callers pick a fallback name in that case.
func SanitizeFilename(title string) string {
	name := invalidFilenameChars.ReplaceAllString(title, "")
	name = strings.TrimSpace(name)

	runes := []rune(name)
	if len(runes) > MaxFilenameLength {
		name = strings.TrimSpace(string(runes[:MaxFilenameLength]))
	}
	if strings.Trim(name, ".") == "" {
		return ""
	}
	return name
}

// SanitizeFilenameOr sanitizes title and falls back when nothing is left
func SanitizeFilenameOr(title, fallback string) string {
	if name := SanitizeFilename(title); name != "" {
		return name
	}
	return fallback
}
