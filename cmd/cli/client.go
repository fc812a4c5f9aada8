package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/mediagrab-go/internal/domain"
)

// apiError is the decoded error body of a failed request
type apiError struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Kind    string `json:"kind"`
}

func (e *apiError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Kind, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// apiClient talks to a running mediagrab server
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// downloads stream for as long as yt-dlp runs
		http: &http.Client{},
	}
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON sends body and decodes a 2xx response into out
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &apiError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

// download runs a synchronous download and saves the attachment into destDir
func (c *apiClient) download(ctx context.Context, request domain.DownloadRequest, destDir string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/download", request)
	if err != nil {
		return "", err
	}
	return c.saveAttachment(req, destDir)
}

// fetchArtifact saves the finished artifact of a background job into destDir
func (c *apiClient) fetchArtifact(ctx context.Context, id, destDir string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id)+"/artifact", nil)
	if err != nil {
		return "", err
	}
	return c.saveAttachment(req, destDir)
}

func (c *apiClient) saveAttachment(req *http.Request, destDir string) (string, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}

	name := attachmentName(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = resp.Header.Get("X-Job-ID")
	}
	if name == "" {
		return "", fmt.Errorf("response carried no file name")
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	path := filepath.Join(destDir, name)
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	return path, nil
}

// attachmentName extracts a bare file name from a Content-Disposition header
func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := filepath.Base(params["filename"])
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func (c *apiClient) submit(ctx context.Context, request domain.DownloadRequest) (*domain.Job, error) {
	var job domain.Job
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/jobs", request, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) listJobs(ctx context.Context, status string) ([]*domain.Job, error) {
	path := "/api/v1/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var result struct {
		Jobs []*domain.Job `json:"jobs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Jobs, nil
}

func (c *apiClient) getJob(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) cancel(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// settingsView is what the settings endpoints return
type settingsView struct {
	domain.Settings
	ResolvedHeight  int    `json:"resolvedHeight"`
	ResolvedBitrate string `json:"resolvedBitrate"`
}

func (c *apiClient) getSettings(ctx context.Context) (*settingsView, error) {
	var view settingsView
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/settings", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) updateSettings(ctx context.Context, update domain.Settings) (*settingsView, error) {
	var view settingsView
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/settings", update, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *apiClient) healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// watch streams progress events for a job over the websocket endpoint until
// the terminal event arrives or ctx ends
func (c *apiClient) watch(ctx context.Context, id string, fn func(domain.ProgressEvent)) (domain.ProgressEvent, error) {
	var last domain.ProgressEvent

	wsURL, err := websocketURL(c.baseURL, "/api/v1/jobs/"+url.PathEscape(id)+"/ws")
	if err != nil {
		return last, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				return last, decodeAPIError(resp)
			}
		}
		return last, fmt.Errorf("failed to open progress stream: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var event domain.ProgressEvent
		if err := conn.ReadJSON(&event); err != nil {
			if last.IsTerminal() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("progress stream ended: %w", err)
		}
		last = event
		fn(event)
		if event.IsTerminal() {
			return last, nil
		}
	}
}

func websocketURL(base, path string) (string, error) {
	u, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	return u.String(), nil
}
