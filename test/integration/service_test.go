//go:build integration

package integration

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/api"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"github.com/yourusername/mediagrab-go/internal/infrastructure"
	"github.com/yourusername/mediagrab-go/pkg/logger"
)

// fakeYTDLP answers metadata lookups and writes its own argument list as the
// downloaded file, so tests can check what the service asked for.
const fakeYTDLP = `#!/bin/sh
case " $* " in
  *" --get-title "*)
    case "$*" in *private*) echo "ERROR: Private video. Sign in at /home/me/.netrc" >&2; exit 1;; esac
    echo "Integration Clip"; exit 0;;
  *" -J "*)
    echo '{"_type":"playlist","title":"Road/Trip Mix","entries":[{"title":"First","url":"u1","id":"a"},{"title":"Second","url":"u2","id":"b"}]}'
    exit 0;;
esac
out=""; ext=mp4; prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  if [ "$a" = "--extract-audio" ]; then ext=mp3; fi
  prev="$a"
done
file=$(printf '%s' "$out" | sed "s/%(ext)s/$ext/")
case "$*" in *broken*) echo "ERROR: unable to download video data" >&2; exit 1;; esac
echo "[download]  25.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
echo "[download]  75.0% of 1.00MiB at 1.00MiB/s ETA 00:00"
printf '%s\n' "$@" > "$file"
echo "[download] 100% of 1.00MiB"
`

type service struct {
	server  *httptest.Server
	config  *domain.Config
	manager *app.JobManager
}

func setupService(t *testing.T) *service {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp needs a POSIX shell")
	}

	binary := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(binary, []byte(fakeYTDLP), 0755))

	config := domain.DefaultConfig()
	config.Download.BaseDir = t.TempDir()
	config.Download.YTDLPBinary = binary
	config.Download.MetadataTimeout = 10 * time.Second
	config.Download.JobTimeout = time.Minute
	config.Settings.Path = filepath.Join(config.Download.ConfigDir(), "settings.yaml")

	log := zap.NewNop()
	logs, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "debug", LogsDir: config.Download.LogsDir()})
	require.NoError(t, err)
	t.Cleanup(func() { logs.Close() })

	manager := app.NewJobManager(app.JobManagerDeps{
		Runner:      infrastructure.NewYTDLPRunner(&config.Download, logs, log),
		Fetcher:     infrastructure.NewYTDLPMetadataFetcher(&config.Download, log),
		Archiver:    infrastructure.NewZipArchiver(),
		Settings:    infrastructure.NewFileSettingsStore(config.Settings.Path, log),
		Broadcaster: app.NewBroadcaster(64, log),
		Logs:        logs,
	}, &config.Download, log)

	server := httptest.NewServer(api.SetupRouter(api.RouterDeps{
		Manager: manager,
		Config:  config,
		Logs:    logs,
		Logger:  log,
	}))
	t.Cleanup(server.Close)

	return &service{server: server, config: config, manager: manager}
}

func (s *service) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *service) put(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, s.server.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestService_DownloadVideo(t *testing.T) {
	s := setupService(t)

	resp := s.post(t, "/api/v1/download", map[string]string{
		"url":        "https://www.youtube.com/watch?v=abc",
		"type":       "video",
		"resolution": "720p",
	})
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Regexp(t, `filename="Integration Clip-\d{4}\.mp4"`, resp.Header.Get("Content-Disposition"))
	assert.Contains(t, body, "bestvideo[height<=720]+bestaudio/best[height<=720]")
	assert.Contains(t, body, "--no-playlist")

	// the delivered file is removed with its work directory
	entries, err := os.ReadDir(s.config.Download.JobsDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_DownloadAudioUsesStoredBitrate(t *testing.T) {
	s := setupService(t)

	resp := s.put(t, "/api/v1/settings", map[string]string{"audioBitrate": "320"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.post(t, "/download", map[string]string{
		"url":  "https://youtu.be/abc",
		"type": "audio",
	})
	body := readBody(t, resp)

	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "--extract-audio")
	assert.Contains(t, body, "320K")
}

func TestService_Failures(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantKind   string
	}{
		{"metadata", "https://youtu.be/private", http.StatusUnprocessableEntity, "metadata"},
		{"download", "https://youtu.be/broken", http.StatusBadGateway, "download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupService(t)

			resp := s.post(t, "/api/v1/download", map[string]string{"url": tt.url, "type": "video"})
			body := readBody(t, resp)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Contains(t, body, `"kind":"`+tt.wantKind+`"`)
			assert.NotContains(t, body, "/home/me")
			assert.NotContains(t, body, "unable to download")
			assert.Empty(t, resp.Header.Get("Content-Disposition"))
		})
	}
}

func TestService_PlaylistJobWithProgress(t *testing.T) {
	s := setupService(t)

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/v1/jobs/tab-9/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := s.post(t, "/api/v1/jobs", map[string]interface{}{
		"url":      "https://www.youtube.com/playlist?list=PL1",
		"type":     "audio",
		"playlist": true,
		"clientId": "tab-9",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var events []domain.ProgressEvent
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var e domain.ProgressEvent
		if err := conn.ReadJSON(&e); err != nil {
			break
		}
		events = append(events, e)
		if e.IsTerminal() {
			break
		}
	}

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.True(t, last.Done, "last event: %+v", last)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, 2, last.ItemsTotal)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}

	artifact, err := http.Get(s.server.URL + "/api/v1/jobs/tab-9/artifact")
	require.NoError(t, err)
	defer artifact.Body.Close()
	require.Equal(t, http.StatusOK, artifact.StatusCode)
	assert.Equal(t, "application/zip", artifact.Header.Get("Content-Type"))
	assert.Contains(t, artifact.Header.Get("Content-Disposition"), `filename="RoadTrip Mix.zip"`)

	data, err := io.ReadAll(artifact.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"01 - First.mp3", "02 - Second.mp3"}, names)

	// an artifact is handed out once
	again, err := http.Get(s.server.URL + "/api/v1/jobs/tab-9/artifact")
	require.NoError(t, err)
	again.Body.Close()
	assert.Equal(t, http.StatusConflict, again.StatusCode)
}

func TestService_ProcessLogWritten(t *testing.T) {
	s := setupService(t)

	resp := s.post(t, "/api/v1/download", map[string]string{"url": "https://youtu.be/abc", "type": "video"})
	readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	logsResp, err := http.Get(s.server.URL + "/api/v1/logs/job")
	require.NoError(t, err)
	defer logsResp.Body.Close()
	body := readBody(t, logsResp)
	assert.Equal(t, http.StatusOK, logsResp.StatusCode)
	assert.Contains(t, body, "job_succeeded")
}
