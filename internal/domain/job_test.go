package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	req := DownloadRequest{URL: "https://youtu.be/abc123", Kind: MediaKindVideo}

	job := NewJob(req)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, req, job.Request)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, PlatformYouTube, job.Platform)
	assert.Equal(t, 1, job.ItemsTotal)
	assert.False(t, job.IsTerminal())
}

func TestNewJob_ClientIDBecomesJobID(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindAudio, ClientID: "tab-42"})

	assert.Equal(t, "tab-42", job.ID)
}

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo})

	require.NoError(t, job.MarkRunning())
	assert.Equal(t, StatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	require.NoError(t, job.MarkSucceeded("Song-0001.mp4", []string{"/tmp/Song-0001.mp4"}))
	assert.Equal(t, StatusSucceeded, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.Equal(t, "Song-0001.mp4", job.ArtifactName)
	assert.NotNil(t, job.FinishedAt)
	assert.True(t, job.IsTerminal())
}

func TestJob_NoTransitionOutOfTerminal(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo})
	require.NoError(t, job.MarkRunning())
	require.NoError(t, job.MarkFailed(NewJobError(ErrorKindDownload, "", errors.New("exit status 1"))))

	assert.Error(t, job.MarkRunning())
	assert.Error(t, job.MarkSucceeded("x.mp4", nil))
	assert.Error(t, job.MarkFailed(errors.New("again")))
	assert.Equal(t, StatusFailed, job.Status)
}

func TestJob_MarkFailedHidesCause(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo})
	require.NoError(t, job.MarkRunning())

	cause := errors.New("ERROR: /home/user/secret/path: unable to write")
	require.NoError(t, job.MarkFailed(NewJobError(ErrorKindDownload, "", cause)))

	assert.Equal(t, ErrorKindDownload, job.ErrorKind)
	assert.Equal(t, "download failed", job.ErrorMessage)
	assert.NotContains(t, job.ErrorMessage, "secret")
}

func TestJob_PendingCanFail(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo})

	require.NoError(t, job.MarkFailed(NewJobError(ErrorKindCancelled, "", nil)))
	assert.Equal(t, ErrorKindCancelled, job.ErrorKind)
}

func TestJob_Clone(t *testing.T) {
	job := NewJob(DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo})
	require.NoError(t, job.MarkRunning())
	job.OutputPaths = []string{"a"}

	c := job.Clone()
	c.OutputPaths[0] = "b"
	c.Status = StatusFailed

	assert.Equal(t, "a", job.OutputPaths[0])
	assert.Equal(t, StatusRunning, job.Status)
	assert.NotSame(t, job.StartedAt, c.StartedAt)
}

func TestDownloadRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DownloadRequest
		wantErr bool
	}{
		{"video", DownloadRequest{URL: "https://youtu.be/abc123", Kind: MediaKindVideo}, false},
		{"audio playlist", DownloadRequest{URL: "https://youtube.com/playlist?list=XYZ", Kind: MediaKindAudio, Playlist: true}, false},
		{"instagram reel", DownloadRequest{URL: "https://www.instagram.com/reel/Cabc/", Kind: MediaKindVideo}, false},
		{"empty url", DownloadRequest{Kind: MediaKindVideo}, true},
		{"not a url", DownloadRequest{URL: "not a url", Kind: MediaKindVideo}, true},
		{"file scheme", DownloadRequest{URL: "file:///etc/passwd", Kind: MediaKindVideo}, true},
		{"no host", DownloadRequest{URL: "https://", Kind: MediaKindVideo}, true},
		{"unknown kind", DownloadRequest{URL: "https://youtu.be/abc", Kind: "gif"}, true},
		{"missing kind", DownloadRequest{URL: "https://youtu.be/abc"}, true},
		{"bad client id", DownloadRequest{URL: "https://youtu.be/abc", Kind: MediaKindVideo, ClientID: "../x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput))
				assert.Equal(t, ErrorKindInput, KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDownloadRequest_Normalize(t *testing.T) {
	req := DownloadRequest{URL: "  https://youtu.be/abc ", Kind: " Audio ", Resolution: " 720p "}.Normalize()

	assert.Equal(t, "https://youtu.be/abc", req.URL)
	assert.Equal(t, MediaKindAudio, req.Kind)
	assert.Equal(t, "720p", req.Resolution)
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url      string
		expected Platform
	}{
		{"https://www.youtube.com/watch?v=abc", PlatformYouTube},
		{"https://youtu.be/abc", PlatformYouTube},
		{"https://m.youtube.com/watch?v=abc", PlatformYouTube},
		{"https://www.instagram.com/reel/abc/", PlatformInstagram},
		{"https://vimeo.com/123", PlatformGeneric},
		{"::bad", PlatformGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectPlatform(tt.url))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "", PublicMessage(nil))
	assert.Equal(t, "invalid request: url is required", PublicMessage(InputError("url is required")))
	assert.Equal(t, "failed to fetch media metadata", PublicMessage(NewJobError(ErrorKindMetadata, "x", errors.New("raw"))))
	assert.Equal(t, "internal error", PublicMessage(errors.New("boom")))
}
