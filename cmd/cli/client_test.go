package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

func TestAttachmentName(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="Clip-0042.mp4"`, "Clip-0042.mp4"},
		{`attachment; filename="../../etc/passwd"`, "passwd"},
		{`attachment`, ""},
		{``, ""},
		{`;;;`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, attachmentName(tt.header))
		})
	}
}

func TestWebsocketURL(t *testing.T) {
	u, err := websocketURL("http://localhost:5000", "/api/v1/jobs/a/ws")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/api/v1/jobs/a/ws", u)

	u, err = websocketURL("https://media.local", "/x")
	require.NoError(t, err)
	assert.Equal(t, "wss://media.local/x", u)
}

func TestClient_Download(t *testing.T) {
	var got domain.DownloadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/download", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Disposition", `attachment; filename="Song-1234.mp3"`)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3"))
	}))
	defer server.Close()

	dir := t.TempDir()
	path, err := newAPIClient(server.URL).download(context.Background(), domain.DownloadRequest{
		URL:  "https://youtu.be/x",
		Kind: domain.MediaKindAudio,
	}, dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Song-1234.mp3"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))
	assert.Equal(t, domain.MediaKindAudio, got.Kind)
	assert.NoFileExists(t, path+".part")
}

func TestClient_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"failed to fetch media metadata","kind":"metadata"}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := newAPIClient(server.URL).download(context.Background(), domain.DownloadRequest{URL: "u"}, dir)
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "metadata", apiErr.Kind)
	assert.Equal(t, "failed to fetch media metadata (metadata, HTTP 422)", err.Error())

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestClient_PlainErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newAPIClient(server.URL).getJob(context.Background(), "x")
	assert.EqualError(t, err, "bad gateway (HTTP 502)")
}

func TestClient_Watch(t *testing.T) {
	events := []domain.ProgressEvent{
		{JobID: "j1", Percent: 10, Status: domain.StatusRunning},
		{JobID: "j1", Percent: 60, Status: domain.StatusRunning},
		{JobID: "j1", Percent: 100, Status: domain.StatusSucceeded, Done: true},
	}

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/j1/ws", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, e := range events {
			require.NoError(t, conn.WriteJSON(e))
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	var seen []float64
	last, err := newAPIClient(server.URL).watch(context.Background(), "j1", func(e domain.ProgressEvent) {
		seen = append(seen, e.Percent)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 60, 100}, seen)
	assert.True(t, last.Done)
	assert.NoError(t, progressOutcome(last))
}

func TestClient_WatchUnknownJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"job not found","kind":"not_found"}`))
	}))
	defer server.Close()

	_, err := newAPIClient(server.URL).watch(context.Background(), "nope", func(domain.ProgressEvent) {})
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestProgressOutcome(t *testing.T) {
	assert.NoError(t, progressOutcome(domain.ProgressEvent{JobID: "a", Done: true}))
	assert.EqualError(t,
		progressOutcome(domain.ProgressEvent{JobID: "a", Failed: true, Message: "download failed"}),
		"job a failed: download failed")
	assert.EqualError(t,
		progressOutcome(domain.ProgressEvent{JobID: "a", Status: domain.StatusRunning}),
		"progress stream ended before job a finished")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ääääääë...", truncate("ääääääëëëëëë", 10))
}
