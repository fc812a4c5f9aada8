package domain

import (
	"context"
	"fmt"
	"time"
)

// PlaylistItem is one entry of a flat playlist listing
type PlaylistItem struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// PlaylistInfo is the flat listing of a playlist
type PlaylistInfo struct {
	Title string         `json:"title"`
	Items []PlaylistItem `json:"items"`
}

// MetadataFetcher asks the external tool about a URL before anything is downloaded
type MetadataFetcher interface {
	// FetchTitle returns the title of a single video
	FetchTitle(ctx context.Context, url string) (string, error)

	// FetchPlaylist returns the playlist title and its items in order
	FetchPlaylist(ctx context.Context, url string) (*PlaylistInfo, error)
}

// RunTarget is what one tool invocation downloads and where it writes
type RunTarget struct {
	JobID        string
	URL          string
	Template     string
	PlaylistItem int // 1-based index inside the playlist, 0 for a single video
}

// ProgressFunc receives the percentage parsed from the tool output
type ProgressFunc func(percent float64)

// RunState is the lifecycle of one tool invocation
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRunning    RunState = "running"
	RunSucceeded  RunState = "succeeded"
	RunFailed     RunState = "failed"
)

// Failure reasons of a run
const (
	RunReasonExit          = "non-zero exit"
	RunReasonMissingOutput = "missing output"
	RunReasonCancelled     = "cancelled"
	RunReasonStart         = "failed to start"
)

// IsTerminal checks if the run has finished
func (s RunState) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// Next validates a run state transition
func (s RunState) Next(to RunState) (RunState, error) {
	switch {
	case s == RunNotStarted && to == RunRunning,
		s == RunNotStarted && to == RunFailed,
		s == RunRunning && to.IsTerminal():
		return to, nil
	}
	return s, fmt.Errorf("invalid run transition %s -> %s", s, to)
}

// RunResult is the terminal outcome of one invocation
type RunResult struct {
	State      RunState
	Reason     string
	ExitCode   int
	OutputPath string
	StderrTail []string // logged only, never returned to callers
	Duration   time.Duration
}

// ProcessRunner executes the external tool
type ProcessRunner interface {
	// Run blocks until the invocation is terminal. A failed run returns a *JobError.
	Run(ctx context.Context, spec *ResolvedJobSpec, target RunTarget, onProgress ProgressFunc) (*RunResult, error)
}

// Archiver bundles a directory into a single archive
type Archiver interface {
	// Archive writes every regular file of srcDir into destPath. destPath is complete and
	// closed when Archive returns nil.
	Archive(ctx context.Context, srcDir, destPath string) error
}

// JobNotifier is told about finished jobs
type JobNotifier interface {
	NotifyJobSucceeded(job *Job)
	NotifyJobFailed(job *Job)
}

// ProgressEvent is a progress update attributed to one job
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	Percent    float64   `json:"progress"`
	Status     JobStatus `json:"status"`
	Message    string    `json:"message,omitempty"`
	ItemsDone  int       `json:"itemsDone"`
	ItemsTotal int       `json:"itemsTotal"`
	Failed     bool      `json:"failed"`
	Done       bool      `json:"done"`
	ErrorKind  ErrorKind `json:"errorKind,omitempty"`
}

// IsTerminal checks if no further events follow
func (e ProgressEvent) IsTerminal() bool {
	return e.Done || e.Failed
}

// ClampPercent bounds a percentage to [0, 100]
func ClampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
