package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaKind is the kind of media the caller wants back
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindAudio MediaKind = "audio"
)

// JobStatus represents the current status of a job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Platform is the detected source of a URL. It only affects logging and notifications;
// the external tool decides what it can actually download.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformGeneric   Platform = "generic"
)

// DownloadRequest is an accepted download request. It is not modified after Submit.
type DownloadRequest struct {
	URL        string    `json:"url"`
	Kind       MediaKind `json:"type"`
	Resolution string    `json:"resolution,omitempty"`
	Playlist   bool      `json:"playlist,omitempty"`
	ClientID   string    `json:"clientId,omitempty"`
}

// Normalize trims fields and lowercases the media kind
func (r DownloadRequest) Normalize() DownloadRequest {
	r.URL = strings.TrimSpace(r.URL)
	r.Kind = MediaKind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	r.Resolution = strings.TrimSpace(r.Resolution)
	r.ClientID = strings.TrimSpace(r.ClientID)
	return r
}

// Validate rejects requests that must never reach the external tool
func (r DownloadRequest) Validate() error {
	if r.URL == "" {
		return InputError("url is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return InputError("url must be an absolute http(s) url")
	}
	if r.Kind != MediaKindVideo && r.Kind != MediaKindAudio {
		return InputError("unsupported media type %q", r.Kind)
	}
	if r.ClientID != "" {
		if len(r.ClientID) > 64 || strings.ContainsAny(r.ClientID, `/\. `) {
			return InputError("invalid client id")
		}
	}
	return nil
}

// Job is the lifecycle record of one accepted request
type Job struct {
	ID           string          `json:"id"`
	Request      DownloadRequest `json:"request"`
	Platform     Platform        `json:"platform"`
	Status       JobStatus       `json:"status"`
	Progress     float64         `json:"progress"`
	ItemsDone    int             `json:"items_done"`
	ItemsTotal   int             `json:"items_total"`
	Title        string          `json:"title,omitempty"`
	OutputPaths  []string        `json:"-"`
	ArtifactName string          `json:"artifact_name,omitempty"`
	ErrorKind    ErrorKind       `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// NewJob creates a pending job. The client id, when present, becomes the job id.
func NewJob(req DownloadRequest) *Job {
	id := req.ClientID
	if id == "" {
		id = uuid.New().String()
	}
	return &Job{
		ID:         id,
		Request:    req,
		Platform:   DetectPlatform(req.URL),
		Status:     StatusPending,
		ItemsTotal: 1,
		CreatedAt:  time.Now(),
	}
}

// MarkRunning moves a pending job to running
func (j *Job) MarkRunning() error {
	if j.Status != StatusPending {
		return fmt.Errorf("cannot start job in state %s", j.Status)
	}
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	return nil
}

// MarkSucceeded records the delivered artifact and saturates progress
func (j *Job) MarkSucceeded(artifactName string, outputs []string) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("cannot complete job in state %s", j.Status)
	}
	now := time.Now()
	j.Status = StatusSucceeded
	j.Progress = 100
	j.ItemsDone = j.ItemsTotal
	j.ArtifactName = artifactName
	j.OutputPaths = outputs
	j.FinishedAt = &now
	return nil
}

// MarkFailed records the categorical failure. Only the public message is kept.
func (j *Job) MarkFailed(err error) error {
	if j.IsTerminal() {
		return fmt.Errorf("cannot fail job in state %s", j.Status)
	}
	now := time.Now()
	j.Status = StatusFailed
	j.ErrorKind = KindOf(err)
	j.ErrorMessage = PublicMessage(err)
	j.FinishedAt = &now
	return nil
}

// IsTerminal checks if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Clone returns a copy that is safe to hand out of the owning lock
func (j *Job) Clone() *Job {
	c := *j
	c.OutputPaths = append([]string(nil), j.OutputPaths...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// PublicMessage returns the caller-safe message for err
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		if jobErr.Kind == ErrorKindInput {
			return jobErr.Error()
		}
		return jobErr.Public()
	}
	if sentinel, ok := kindSentinels[KindOf(err)]; ok {
		return sentinel.Error()
	}
	return ErrInternal.Error()
}

// DetectPlatform detects the platform from a URL
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformGeneric
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtube.com", "youtu.be", "music.youtube.com", "youtube-nocookie.com":
		return PlatformYouTube
	case "instagram.com", "instagr.am":
		return PlatformInstagram
	}
	return PlatformGeneric
}
