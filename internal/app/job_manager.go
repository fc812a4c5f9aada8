package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"github.com/yourusername/mediagrab-go/pkg/logger"
	"go.uber.org/zap"
)

// Artifact is a delivered file. Release removes it together with the job's
// working directory.
type Artifact struct {
	Path        string
	Name        string
	ContentType string
	Size        int64

	release func()
	once    sync.Once
}

// Release removes the artifact. Safe to call more than once.
func (a *Artifact) Release() {
	a.once.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

type jobEntry struct {
	job             *domain.Job
	cancel          context.CancelFunc
	cancelRequested bool
	artifact        *Artifact // held for later retrieval (Start path)
	keepWorkDir     bool      // playlist output could not be moved to failed/
	done            chan struct{}
}

// JobManager accepts download requests and drives them to an artifact
type JobManager struct {
	runner      domain.ProcessRunner
	fetcher     domain.MetadataFetcher
	archiver    domain.Archiver
	settings    domain.SettingsStore
	broadcaster *Broadcaster
	notifier    domain.JobNotifier
	logs        *logger.MultiLogger
	config      *domain.DownloadConfig
	logger      *zap.Logger

	semaphore chan struct{}
	jobs      map[string]*jobEntry
	forgotten map[string]time.Time // ids dropped by Forget, by time of removal
	mu        sync.RWMutex
	wg        sync.WaitGroup

	suffix func() string
}

// JobManagerDeps groups the collaborators of a JobManager
type JobManagerDeps struct {
	Runner      domain.ProcessRunner
	Fetcher     domain.MetadataFetcher
	Archiver    domain.Archiver
	Settings    domain.SettingsStore
	Broadcaster *Broadcaster
	Notifier    domain.JobNotifier  // optional
	Logs        *logger.MultiLogger // optional
}

// NewJobManager creates a new job manager
func NewJobManager(deps JobManagerDeps, config *domain.DownloadConfig, log *zap.Logger) *JobManager {
	limit := config.MaxConcurrentJobs
	if limit < 1 {
		limit = 1
	}

	return &JobManager{
		runner:      deps.Runner,
		fetcher:     deps.Fetcher,
		archiver:    deps.Archiver,
		settings:    deps.Settings,
		broadcaster: deps.Broadcaster,
		notifier:    deps.Notifier,
		logs:        deps.Logs,
		config:      config,
		logger:      log,
		semaphore:   make(chan struct{}, limit),
		jobs:        make(map[string]*jobEntry),
		forgotten:   make(map[string]time.Time),
		suffix:      randomSuffix,
	}
}

// randomSuffix returns the 4-digit token that keeps single-file names unique
func randomSuffix() string {
	return fmt.Sprintf("%04d", rand.Intn(10000))
}

// Broadcaster returns the progress broadcaster jobs publish to
func (m *JobManager) Broadcaster() *Broadcaster {
	return m.broadcaster
}

// Settings returns the settings store jobs resolve against
func (m *JobManager) Settings() domain.SettingsStore {
	return m.settings
}

// Submit validates req and registers a pending job
func (m *JobManager) Submit(req domain.DownloadRequest) (*domain.Job, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := domain.NewJob(req)

	m.mu.Lock()
	if _, exists := m.jobs[job.ID]; exists {
		m.mu.Unlock()
		return nil, domain.InputError("job %s already exists", job.ID)
	}
	m.jobs[job.ID] = &jobEntry{job: job, done: make(chan struct{})}
	delete(m.forgotten, job.ID)
	m.mu.Unlock()

	m.logger.Info("Job accepted",
		zap.String("id", job.ID),
		zap.String("url", req.URL),
		zap.String("type", string(req.Kind)),
		zap.Bool("playlist", req.Playlist),
		zap.String("platform", string(job.Platform)))
	m.logEvent("job_accepted", job)

	m.publish(job, "")
	return job.Clone(), nil
}

// Download runs req to completion on the caller's goroutine. The caller must
// Release the artifact once it has been delivered.
func (m *JobManager) Download(ctx context.Context, req domain.DownloadRequest) (*domain.Job, *Artifact, error) {
	job, err := m.Submit(req)
	if err != nil {
		return nil, nil, err
	}
	artifact, err := m.execute(ctx, job.ID, false)
	final, _ := m.Get(job.ID)
	return final, artifact, err
}

// Start submits req and runs it in the background. The artifact is held until
// TakeArtifact or expiry.
func (m *JobManager) Start(req domain.DownloadRequest) (*domain.Job, error) {
	job, err := m.Submit(req)
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(context.Background(), job.ID, true)
	}()
	return job, nil
}

// Execute runs a submitted job and returns its artifact
func (m *JobManager) Execute(ctx context.Context, id string) (*Artifact, error) {
	return m.execute(ctx, id, false)
}

func (m *JobManager) execute(ctx context.Context, id string, hold bool) (*Artifact, error) {
	m.mu.Lock()
	entry, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrJobNotFound
	}
	if entry.cancel != nil || entry.job.Status != domain.StatusPending {
		m.mu.Unlock()
		return nil, fmt.Errorf("job %s already started", id)
	}

	if m.config.JobTimeout > 0 {
		ctx, entry.cancel = context.WithTimeout(ctx, m.config.JobTimeout)
	} else {
		ctx, entry.cancel = context.WithCancel(ctx)
	}
	cancel := entry.cancel
	if entry.cancelRequested {
		cancel()
	}
	m.mu.Unlock()
	defer cancel()
	defer close(entry.done)

	if ctx.Err() != nil {
		err := domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err())
		m.fail(entry, err)
		return nil, err
	}

	// Waiting jobs stay pending until a slot frees up
	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-ctx.Done():
		err := domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err())
		m.fail(entry, err)
		return nil, err
	}

	m.mu.Lock()
	err := entry.job.MarkRunning()
	job := entry.job.Clone()
	m.mu.Unlock()
	if err != nil {
		m.fail(entry, domain.NewJobError(domain.ErrorKindInternal, "", err))
		return nil, err
	}

	m.logger.Info("Job started", zap.String("id", id))
	m.logEvent("job_started", job)
	m.publish(job, "")

	var artifact *Artifact
	if job.Request.Playlist {
		artifact, err = m.runPlaylist(ctx, entry)
	} else {
		artifact, err = m.runSingle(ctx, entry)
	}
	if err != nil {
		m.fail(entry, err)
		return nil, err
	}

	m.succeed(entry, artifact, hold)
	return artifact, nil
}

func (m *JobManager) runSingle(ctx context.Context, entry *jobEntry) (*Artifact, error) {
	id := entry.job.ID
	req := entry.job.Request

	title, err := m.fetcher.FetchTitle(ctx, req.URL)
	if err != nil {
		return nil, asJobError(domain.ErrorKindMetadata, err)
	}
	m.update(entry, func(j *domain.Job) { j.Title = title })

	spec := domain.ResolveJobSpec(req, m.settings.Load(), domain.OutputLayout{
		BaseDir: m.config.BaseDir,
		JobID:   id,
		Title:   title,
		Suffix:  m.suffix(),
	})
	m.logSpec(id, spec)

	if err := os.MkdirAll(spec.WorkDir, 0755); err != nil {
		return nil, domain.NewJobError(domain.ErrorKindInternal, "", fmt.Errorf("failed to create work directory: %w", err))
	}

	result, err := m.runner.Run(ctx, spec, domain.RunTarget{
		JobID:    id,
		URL:      req.URL,
		Template: spec.OutputTemplate,
	}, func(p float64) {
		m.reportProgress(entry, p)
	})
	if err != nil {
		m.logRunFailure(id, result, err)
		return nil, asJobError(domain.ErrorKindDownload, err)
	}

	return newArtifact(result.OutputPath, spec.ArtifactName, spec.ContentType()), nil
}

func (m *JobManager) runPlaylist(ctx context.Context, entry *jobEntry) (*Artifact, error) {
	id := entry.job.ID
	req := entry.job.Request

	info, err := m.fetcher.FetchPlaylist(ctx, req.URL)
	if err != nil {
		return nil, asJobError(domain.ErrorKindMetadata, err)
	}
	total := len(info.Items)
	m.update(entry, func(j *domain.Job) {
		j.Title = info.Title
		j.ItemsTotal = total
	})

	spec := domain.ResolveJobSpec(req, m.settings.Load(), domain.OutputLayout{
		BaseDir: m.config.BaseDir,
		JobID:   id,
		Title:   info.Title,
	})
	m.logSpec(id, spec)

	if err := os.MkdirAll(spec.OutputDir, 0755); err != nil {
		return nil, domain.NewJobError(domain.ErrorKindInternal, "", fmt.Errorf("failed to create playlist directory: %w", err))
	}

	for done, item := range info.Items {
		if ctx.Err() != nil {
			m.preserveFailed(entry, spec.OutputDir, done)
			return nil, domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err())
		}

		result, err := m.runner.Run(ctx, spec, domain.RunTarget{
			JobID:        id,
			URL:          req.URL,
			Template:     spec.ItemTemplate(item.Index, item.Title),
			PlaylistItem: item.Index,
		}, func(p float64) {
			m.reportProgress(entry, PlaylistProgress(done, total, p))
		})
		if err != nil {
			m.logRunFailure(id, result, err)
			m.logger.Warn("Playlist item failed, aborting remaining items",
				zap.String("id", id),
				zap.Int("item", item.Index),
				zap.Int("completed", done),
				zap.Int("total", total))
			m.preserveFailed(entry, spec.OutputDir, done)
			return nil, asJobError(domain.ErrorKindDownload, err)
		}

		m.update(entry, func(j *domain.Job) {
			j.ItemsDone = done + 1
			j.Progress = PlaylistProgress(done+1, total, 0)
		})
		m.publishEntry(entry, fmt.Sprintf("Downloaded %d/%d", done+1, total))
	}

	dest := spec.ArtifactPath()
	if err := m.archiver.Archive(ctx, spec.OutputDir, dest); err != nil {
		m.logger.Error("Playlist archive failed",
			zap.String("id", id),
			zap.String("dir", spec.OutputDir),
			zap.Error(err))
		m.moveToFailed(entry, spec.OutputDir, total)
		return nil, asJobError(domain.ErrorKindArchive, err)
	}

	// the archive is complete, the per-item files are no longer needed
	if err := os.RemoveAll(spec.OutputDir); err != nil {
		m.logCleanupFailure(id, spec.OutputDir, err)
	}

	return newArtifact(dest, spec.ArtifactName, spec.ContentType()), nil
}

// PlaylistProgress aggregates item progress: (done + current/100) / total * 100
func PlaylistProgress(done, total int, current float64) float64 {
	if total <= 0 {
		return 0
	}
	p := (float64(done) + domain.ClampPercent(current)/100) / float64(total) * 100
	return domain.ClampPercent(p)
}

func newArtifact(path, name, contentType string) *Artifact {
	a := &Artifact{Path: path, Name: name, ContentType: contentType}
	if info, err := os.Stat(path); err == nil {
		a.Size = info.Size()
	}
	return a
}

// asJobError keeps a JobError as is and wraps anything else into kind
func asJobError(kind domain.ErrorKind, err error) error {
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return err
	}
	return domain.NewJobError(kind, "", err)
}

// preserveFailed keeps the completed items of an aborted playlist when configured to
func (m *JobManager) preserveFailed(entry *jobEntry, dir string, completed int) {
	if completed == 0 || !m.config.PreserveFailedPlaylists {
		return
	}
	m.moveToFailed(entry, dir, completed)
}

// moveToFailed moves a playlist directory to failed/<jobID> for manual recovery.
// Partial downloads are dropped first. If the move fails the work directory is
// left in place instead of being removed with the failed job.
func (m *JobManager) moveToFailed(entry *jobEntry, dir string, completed int) bool {
	id := entry.job.ID
	removePartialFiles(dir)

	dest := filepath.Join(m.config.FailedDir(), id)
	err := os.MkdirAll(m.config.FailedDir(), 0755)
	if err == nil {
		err = os.Rename(dir, dest)
	}
	if err != nil {
		m.logCleanupFailure(id, dest, err)
		m.mu.Lock()
		entry.keepWorkDir = true
		m.mu.Unlock()
		return false
	}

	m.logger.Warn("Preserved playlist output for recovery",
		zap.String("id", id),
		zap.String("path", dest),
		zap.Int("items", completed))
	if m.logs != nil {
		m.logs.LogJobEvent("job_output_preserved",
			zap.String("job_id", id),
			zap.String("path", dest),
			zap.Int("items", completed))
	}
	return true
}

// removePartialFiles deletes yt-dlp leftovers of an interrupted item
func removePartialFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") || strings.Contains(name, ".part-Frag") {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

func (m *JobManager) succeed(entry *jobEntry, artifact *Artifact, hold bool) {
	id := entry.job.ID
	artifact.release = func() {
		m.removeWorkDir(id)
		m.mu.Lock()
		if entry.artifact == artifact {
			entry.artifact = nil
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	if err := entry.job.MarkSucceeded(artifact.Name, []string{artifact.Path}); err != nil {
		m.logger.Error("Failed to mark job succeeded", zap.String("id", id), zap.Error(err))
	}
	if hold {
		entry.artifact = artifact
	}
	job := entry.job.Clone()
	m.mu.Unlock()

	m.logger.Info("Job succeeded",
		zap.String("id", id),
		zap.String("artifact", artifact.Name),
		zap.Int64("size", artifact.Size))
	m.logEvent("job_succeeded", job, zap.String("artifact", artifact.Name), zap.Int64("size", artifact.Size))

	m.publish(job, "")
	if m.notifier != nil {
		m.notifier.NotifyJobSucceeded(job)
	}
}

func (m *JobManager) fail(entry *jobEntry, err error) {
	m.mu.Lock()
	if markErr := entry.job.MarkFailed(err); markErr != nil {
		m.mu.Unlock()
		m.logger.Error("Failed to mark job failed", zap.String("id", entry.job.ID), zap.Error(markErr))
		return
	}
	job := entry.job.Clone()
	keep := entry.keepWorkDir
	m.mu.Unlock()

	if keep {
		m.logger.Warn("Kept work directory of failed job",
			zap.String("id", job.ID),
			zap.String("path", filepath.Join(m.config.JobsDir(), job.ID)))
	} else {
		m.removeWorkDir(job.ID)
	}

	// the cause can carry local paths or tool output: logs only
	m.logger.Warn("Job failed",
		zap.String("id", job.ID),
		zap.String("kind", string(job.ErrorKind)),
		zap.Error(err))
	m.logEvent("job_failed", job, zap.String("kind", string(job.ErrorKind)), zap.String("cause", err.Error()))

	m.publish(job, job.ErrorMessage)
	if m.notifier != nil {
		m.notifier.NotifyJobFailed(job)
	}
}

func (m *JobManager) removeWorkDir(id string) {
	dir := filepath.Join(m.config.JobsDir(), id)
	if err := os.RemoveAll(dir); err != nil {
		m.logCleanupFailure(id, dir, err)
	}
}

func (m *JobManager) logCleanupFailure(id, path string, err error) {
	m.logger.Error("Cleanup failed", zap.String("id", id), zap.String("path", path), zap.Error(err))
	if m.logs != nil {
		m.logs.LogAppError("cleanup_failed",
			zap.String("job_id", id),
			zap.String("path", path),
			zap.Error(err))
	}
}

func (m *JobManager) logRunFailure(id string, result *domain.RunResult, err error) {
	if result == nil {
		return
	}
	m.logger.Debug("Run failed",
		zap.String("id", id),
		zap.String("reason", result.Reason),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration),
		zap.Strings("stderr", result.StderrTail),
		zap.Error(err))
}

func (m *JobManager) logSpec(id string, spec *domain.ResolvedJobSpec) {
	m.logger.Debug("Resolved job spec",
		zap.String("id", id),
		zap.String("format", spec.FormatSelector),
		zap.Strings("post_process", spec.PostProcessArgs),
		zap.String("output_dir", spec.OutputDir),
		zap.String("template", spec.OutputTemplate))
}

func (m *JobManager) logEvent(event string, job *domain.Job, fields ...zap.Field) {
	if m.logs == nil {
		return
	}
	fields = append([]zap.Field{
		zap.String("job_id", job.ID),
		zap.String("url", job.Request.URL),
		zap.String("type", string(job.Request.Kind)),
		zap.Bool("playlist", job.Request.Playlist),
		zap.String("status", string(job.Status)),
	}, fields...)
	m.logs.LogJobEvent(event, fields...)
}

// update mutates the job under the lock
func (m *JobManager) update(entry *jobEntry, fn func(j *domain.Job)) {
	m.mu.Lock()
	fn(entry.job)
	m.mu.Unlock()
}

func (m *JobManager) reportProgress(entry *jobEntry, percent float64) {
	m.mu.Lock()
	entry.job.Progress = domain.ClampPercent(percent)
	m.mu.Unlock()
	m.publishEntry(entry, "")
}

func (m *JobManager) publishEntry(entry *jobEntry, message string) {
	m.mu.RLock()
	job := entry.job.Clone()
	m.mu.RUnlock()
	m.publish(job, message)
}

func (m *JobManager) publish(job *domain.Job, message string) {
	m.broadcaster.Publish(domain.ProgressEvent{
		JobID:      job.ID,
		Percent:    job.Progress,
		Status:     job.Status,
		Message:    message,
		ItemsDone:  job.ItemsDone,
		ItemsTotal: job.ItemsTotal,
		Failed:     job.Status == domain.StatusFailed,
		Done:       job.Status == domain.StatusSucceeded,
		ErrorKind:  job.ErrorKind,
	})
}

// Cancel stops a pending or running job
func (m *JobManager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if entry.job.IsTerminal() {
		return fmt.Errorf("job already in terminal state: %s", entry.job.Status)
	}

	entry.cancelRequested = true
	if entry.cancel != nil {
		entry.cancel()
	}

	m.logger.Info("Job cancel requested", zap.String("id", id))
	return nil
}

// Wait blocks until the job's execution has returned
func (m *JobManager) Wait(ctx context.Context, id string) error {
	m.mu.RLock()
	entry, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return domain.ErrJobNotFound
	}

	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a snapshot of the job
func (m *JobManager) Get(id string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return entry.job.Clone(), nil
}

// List returns snapshots of all known jobs, newest first
func (m *JobManager) List() []*domain.Job {
	m.mu.RLock()
	jobs := make([]*domain.Job, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, entry.job.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs
}

// TakeArtifact hands over the held artifact of a finished background job. It can
// be taken once; the caller must Release it after delivery.
func (m *JobManager) TakeArtifact(id string) (*Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if entry.job.Status != domain.StatusSucceeded || entry.artifact == nil {
		return nil, domain.ErrArtifactNotReady
	}

	artifact := entry.artifact
	entry.artifact = nil
	return artifact, nil
}

// IsLive reports whether id still owns its working directory
func (m *JobManager) IsLive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.jobs[id]
	if !ok {
		return false
	}
	return !entry.job.IsTerminal() || entry.artifact != nil || entry.keepWorkDir
}

// IsForgotten reports whether id belonged to a job that Forget has dropped
func (m *JobManager) IsForgotten(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.forgotten[id]
	return ok
}

// ReleaseExpired releases held artifacts of jobs finished before the cutoff
func (m *JobManager) ReleaseExpired(before time.Time) int {
	m.mu.RLock()
	var expired []*Artifact
	for _, entry := range m.jobs {
		if entry.artifact != nil && finishedBefore(entry.job, before) {
			expired = append(expired, entry.artifact)
		}
	}
	m.mu.RUnlock()

	for _, a := range expired {
		a.Release()
	}
	return len(expired)
}

// Forget drops finished jobs without a held artifact that ended before the cutoff.
// Dropped ids are remembered until a later call passes their removal time.
func (m *JobManager) Forget(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, at := range m.forgotten {
		if at.Before(before) {
			delete(m.forgotten, id)
		}
	}

	now := time.Now()
	removed := 0
	for id, entry := range m.jobs {
		if entry.artifact == nil && !entry.keepWorkDir && finishedBefore(entry.job, before) {
			delete(m.jobs, id)
			m.forgotten[id] = now
			removed++
		}
	}
	return removed
}

func finishedBefore(job *domain.Job, before time.Time) bool {
	return job.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(before)
}

// Shutdown cancels every unfinished job and waits for background jobs to return
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, entry := range m.jobs {
		if !entry.job.IsTerminal() {
			entry.cancelRequested = true
			if entry.cancel != nil {
				entry.cancel()
			}
		}
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
