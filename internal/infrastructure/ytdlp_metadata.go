package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

// YTDLPMetadataFetcher implements domain.MetadataFetcher with yt-dlp's
// --get-title and -J --flat-playlist modes
type YTDLPMetadataFetcher struct {
	binary    string
	extraArgs []string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewYTDLPMetadataFetcher creates a new metadata fetcher
func NewYTDLPMetadataFetcher(config *domain.DownloadConfig, log *zap.Logger) *YTDLPMetadataFetcher {
	return &YTDLPMetadataFetcher{
		binary:    config.YTDLPBinary,
		extraArgs: config.ExtraArgs,
		timeout:   config.MetadataTimeout,
		logger:    log,
	}
}

// flatPlaylist is the subset of yt-dlp's -J --flat-playlist output we read
type flatPlaylist struct {
	Type    string `json:"_type"`
	Title   string `json:"title"`
	Entries []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		ID    string `json:"id"`
	} `json:"entries"`
}

// FetchTitle returns the title of a single video
func (f *YTDLPMetadataFetcher) FetchTitle(ctx context.Context, url string) (string, error) {
	out, err := f.run(ctx, buildTitleArgs(url, f.extraArgs))
	if err != nil {
		return "", err
	}

	// --get-title prints one line per video; keep the first non-empty one
	for _, line := range strings.Split(string(out), "\n") {
		if title := strings.TrimSpace(line); title != "" {
			return title, nil
		}
	}
	return "", domain.NewJobError(domain.ErrorKindMetadata, "", fmt.Errorf("yt-dlp returned no title for %s", url))
}

// FetchPlaylist returns the playlist title and its items in order
func (f *YTDLPMetadataFetcher) FetchPlaylist(ctx context.Context, url string) (*domain.PlaylistInfo, error) {
	out, err := f.run(ctx, buildPlaylistArgs(url, f.extraArgs))
	if err != nil {
		return nil, err
	}
	return parseFlatPlaylist(out)
}

func parseFlatPlaylist(data []byte) (*domain.PlaylistInfo, error) {
	var raw flatPlaylist
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewJobError(domain.ErrorKindMetadata, "", fmt.Errorf("failed to parse playlist listing: %w", err))
	}

	info := &domain.PlaylistInfo{Title: raw.Title}

	// a URL that is a single video comes back without entries
	if raw.Type != "playlist" && len(raw.Entries) == 0 {
		info.Items = []domain.PlaylistItem{{Index: 1, Title: raw.Title}}
		return info, nil
	}

	for i, e := range raw.Entries {
		info.Items = append(info.Items, domain.PlaylistItem{Index: i + 1, Title: e.Title, URL: e.URL})
	}
	if len(info.Items) == 0 {
		return nil, domain.NewJobError(domain.ErrorKindMetadata, "playlist is empty", nil)
	}
	return info, nil
}

func (f *YTDLPMetadataFetcher) run(ctx context.Context, args []string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, f.binary, args...)
	setProcessGroup(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.Canceled {
			return nil, domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err())
		}
		f.logger.Warn("yt-dlp metadata lookup failed",
			zap.String("command", ShellEscapeCommand(f.binary, args...)),
			zap.String("stderr", lastLines(stderr.String(), 5)),
			zap.Error(err))
		return nil, domain.NewJobError(domain.ErrorKindMetadata, "", fmt.Errorf("yt-dlp metadata lookup failed: %w", err))
	}
	return stdout.Bytes(), nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

var _ domain.MetadataFetcher = (*YTDLPMetadataFetcher)(nil)
