package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

// Janitor periodically removes what finished or abandoned jobs left behind
type Janitor struct {
	manager   *JobManager
	config    *domain.DownloadConfig
	logger    *zap.Logger
	scheduler *gocron.Scheduler
	now       func() time.Time
}

// SweepStats counts what one sweep removed
type SweepStats struct {
	StaleDirs        int
	ExpiredArtifacts int
	ForgottenJobs    int
	PrunedTopics     int
}

// NewJanitor creates a janitor for the manager's working directories
func NewJanitor(manager *JobManager, config *domain.DownloadConfig, logger *zap.Logger) *Janitor {
	return &Janitor{
		manager: manager,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Start schedules the sweep every cleanup interval. A zero interval disables it.
func (j *Janitor) Start() error {
	if j.config.CleanupInterval <= 0 {
		j.logger.Info("Cleanup interval is 0, scheduled cleanup is disabled")
		return nil
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if _, err := s.Every(j.config.CleanupInterval).Do(j.Sweep); err != nil {
		return fmt.Errorf("failed to schedule cleanup: %w", err)
	}

	j.logger.Info("Starting cleanup scheduler", zap.Duration("interval", j.config.CleanupInterval))
	s.StartAsync()
	j.scheduler = s
	return nil
}

// Stop stops the scheduler
func (j *Janitor) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}

// Sweep runs one cleanup pass
func (j *Janitor) Sweep() SweepStats {
	now := j.now()
	var stats SweepStats

	if j.config.ArtifactTTL > 0 {
		cutoff := now.Add(-j.config.ArtifactTTL)
		stats.ExpiredArtifacts = j.manager.ReleaseExpired(cutoff)
		stats.ForgottenJobs = j.manager.Forget(cutoff)
		stats.PrunedTopics = j.manager.Broadcaster().Prune(cutoff)
	}

	if j.config.StaleAfter > 0 {
		stats.StaleDirs = j.removeStaleDirs(now.Add(-j.config.StaleAfter))
	}

	if stats != (SweepStats{}) {
		j.logger.Info("Cleanup sweep finished",
			zap.Int("stale_dirs", stats.StaleDirs),
			zap.Int("expired_artifacts", stats.ExpiredArtifacts),
			zap.Int("forgotten_jobs", stats.ForgottenJobs),
			zap.Int("pruned_topics", stats.PrunedTopics))
	}
	return stats
}

// removeStaleDirs removes job directories no live job owns that were last
// modified before the cutoff, e.g. after a crash
func (j *Janitor) removeStaleDirs(before time.Time) int {
	dir := j.config.JobsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("Failed to read jobs directory", zap.String("dir", dir), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if j.manager.IsLive(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.manager.logCleanupFailure(e.Name(), path, err)
			continue
		}
		j.logger.Info("Removed stale job directory", zap.String("path", path))
		removed++
	}
	return removed
}
