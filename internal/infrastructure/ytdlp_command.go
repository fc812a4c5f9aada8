package infrastructure

import (
	"strconv"
	"strings"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// buildDownloadArgs assembles the yt-dlp arguments for one invocation.
// exec.Command passes them directly, no shell quoting is involved.
func buildDownloadArgs(spec *domain.ResolvedJobSpec, target domain.RunTarget, extra []string) []string {
	args := []string{"-f", spec.FormatSelector}
	args = append(args, spec.PostProcessArgs...)
	args = append(args,
		"--newline",
		"--no-colors",
		"--progress",
		"--no-part",
		"-o", target.Template,
	)
	if target.PlaylistItem > 0 {
		args = append(args, "--yes-playlist", "--playlist-items", strconv.Itoa(target.PlaylistItem))
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, extra...)
	return append(args, target.URL)
}

func buildTitleArgs(url string, extra []string) []string {
	args := []string{"--get-title", "--no-playlist", "--no-warnings"}
	args = append(args, extra...)
	return append(args, url)
}

func buildPlaylistArgs(url string, extra []string) []string {
	args := []string{"-J", "--flat-playlist", "--yes-playlist", "--no-warnings"}
	args = append(args, extra...)
	return append(args, url)
}

// ShellEscape quotes s for display in a logged command line
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, isShellSpecialChar) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders binary and args as a copy-pasteable command line
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}

func isShellSpecialChar(c rune) bool {
	switch c {
	case ' ', '\t', '\'', '"', '$', '`', '\\', '!', '*', '?', '[', ']',
		'(', ')', '{', '}', '|', ';', '<', '>', '&', '~', '#', '%', '\n', '\r':
		return true
	default:
		return false
	}
}
