package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications about finished jobs
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification. Failures are logged and returned; callers on the
// job path ignore them.
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptQuote(message), appleScriptQuote(title))
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyJobSucceeded sends notification when a job delivers its artifact
func (n *NotificationService) NotifyJobSucceeded(job *domain.Job) {
	message := fmt.Sprintf("Ready: %s", truncateString(jobLabel(job), 40))
	n.Send("Download Completed", message)
}

// NotifyJobFailed sends notification when a job fails
func (n *NotificationService) NotifyJobFailed(job *domain.Job) {
	if job.ErrorKind == domain.ErrorKindCancelled {
		return
	}
	message := fmt.Sprintf("Failed: %s (%s)", truncateString(jobLabel(job), 40), job.ErrorMessage)
	n.Send("Download Failed", message)
}

func jobLabel(job *domain.Job) string {
	if job.ArtifactName != "" {
		return job.ArtifactName
	}
	if job.Title != "" {
		return job.Title
	}
	return job.Request.URL
}

func appleScriptQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// truncateString truncates a string to the specified number of runes
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

var _ domain.JobNotifier = (*NotificationService)(nil)
