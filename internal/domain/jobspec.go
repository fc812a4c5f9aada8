package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Format selectors and post-processing passed to the external tool
const (
	BestVideoSelector = "bestvideo+bestaudio/best"
	BestAudioSelector = "bestaudio/best"

	VideoExtension   = "mp4"
	AudioExtension   = "mp3"
	ArchiveExtension = "zip"

	extPlaceholder = "%(ext)s"
)

var knownResolutions = map[string]int{
	"144p":  144,
	"240p":  240,
	"360p":  360,
	"480p":  480,
	"720p":  720,
	"1080p": 1080,
	"1440p": 1440,
	"2160p": 2160,
	"4k":    2160,
	"4320p": 4320,
	"8k":    4320,
}

var resolutionDigits = regexp.MustCompile(`\d+`)

// OutputLayout carries the values the orchestrator chooses for a job's output paths
type OutputLayout struct {
	BaseDir string
	JobID   string
	Title   string // video title, or playlist title in playlist mode
	Suffix  string // disambiguator for single-file output
}

// ResolvedJobSpec holds the concrete invocation parameters for one job
type ResolvedJobSpec struct {
	FormatSelector  string
	PostProcessArgs []string
	Extension       string
	WorkDir         string
	OutputDir       string
	OutputTemplate  string
	ArtifactName    string
	Playlist        bool
}

// ResolveJobSpec derives the invocation parameters from a request, a settings snapshot
// and the chosen layout. It performs no I/O and never fails.
func ResolveJobSpec(req DownloadRequest, settings Settings, layout OutputLayout) *ResolvedJobSpec {
	spec := &ResolvedJobSpec{
		WorkDir:  filepath.Join(layout.BaseDir, "jobs", layout.JobID),
		Playlist: req.Playlist,
	}

	if req.Kind == MediaKindAudio {
		spec.FormatSelector = BestAudioSelector
		spec.PostProcessArgs = []string{
			"--extract-audio",
			"--audio-format", AudioExtension,
			"--audio-quality", ResolveAudioBitrate(settings),
		}
		spec.Extension = AudioExtension
	} else {
		height := ResolveVideoQuality(settings)
		if req.Resolution != "" {
			height = ParseResolution(req.Resolution)
		}
		spec.FormatSelector = VideoSelector(height)
		spec.PostProcessArgs = []string{
			"--merge-output-format", VideoExtension,
			"--remux-video", VideoExtension,
		}
		spec.Extension = VideoExtension
	}

	if req.Playlist {
		name := pathComponent(SanitizeFilenameOr(layout.Title, FallbackPlaylistName), FallbackPlaylistName)
		spec.OutputDir = filepath.Join(spec.WorkDir, name)
		// items are downloaded one at a time through ItemTemplate
		spec.OutputTemplate = ""
		spec.ArtifactName = name + "." + ArchiveExtension
		return spec
	}

	stem := pathComponent(SanitizeFilenameOr(layout.Title, FallbackVideoName), FallbackVideoName)
	if layout.Suffix != "" {
		stem += "-" + layout.Suffix
	}
	spec.OutputDir = spec.WorkDir
	spec.OutputTemplate = outputTemplate(spec.OutputDir, stem)
	spec.ArtifactName = stem + "." + spec.Extension
	return spec
}

// ItemTemplate returns the output template for the index-th (1-based) playlist item
func (s *ResolvedJobSpec) ItemTemplate(index int, title string) string {
	name := fmt.Sprintf("%02d - %s", index, SanitizeFilenameOr(title, FallbackVideoName))
	return outputTemplate(s.OutputDir, name)
}

// ExpectedPath returns the file a template produces once the tool has finished
func (s *ResolvedJobSpec) ExpectedPath(template string) string {
	path := strings.TrimSuffix(template, extPlaceholder)
	return strings.ReplaceAll(path, "%%", "%") + s.Extension
}

// outputTemplate joins dir and name into a tool template. A literal % is
// doubled so titles are never read as template fields.
func outputTemplate(dir, name string) string {
	return strings.ReplaceAll(filepath.Join(dir, name), "%", "%%") + "." + extPlaceholder
}

// pathComponent returns name if it is a single entry that stays under its
// parent directory once joined, and fallback otherwise.
func pathComponent(name, fallback string) string {
	cleaned := filepath.Clean(name)
	if cleaned != name || cleaned == "." || cleaned == ".." || strings.ContainsAny(cleaned, `/\`) {
		return fallback
	}
	return name
}

// ArtifactPath is where the delivered file lives inside the work directory
func (s *ResolvedJobSpec) ArtifactPath() string {
	if s.Playlist {
		return filepath.Join(s.WorkDir, s.ArtifactName)
	}
	return s.ExpectedPath(s.OutputTemplate)
}

// ContentType returns the MIME type of the artifact
func (s *ResolvedJobSpec) ContentType() string {
	return ContentTypeFor(s.ArtifactName)
}

// ContentTypeFor maps an artifact name to its MIME type
func ContentTypeFor(name string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case VideoExtension:
		return "video/mp4"
	case AudioExtension:
		return "audio/mpeg"
	case ArchiveExtension:
		return "application/zip"
	}
	return "application/octet-stream"
}

// ParseResolution maps a resolution override to a maximum height.
// Known names use the table; otherwise the literal digits are taken as the bound.
// 0 means best available.
func ParseResolution(resolution string) int {
	key := normalizeResolution(resolution)
	if height, ok := knownResolutions[key]; ok {
		return height
	}
	digits := resolutionDigits.FindString(key)
	if digits == "" {
		return 0
	}
	height, err := strconv.Atoi(digits)
	if err != nil || height <= 0 {
		return 0
	}
	return height
}

// VideoSelector builds the height-bounded selector, or the best selector for 0
func VideoSelector(height int) string {
	if height <= 0 {
		return BestVideoSelector
	}
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
}

func normalizeResolution(resolution string) string {
	return strings.ToLower(strings.TrimSpace(resolution))
}
