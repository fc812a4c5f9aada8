package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryJob     LogCategory = "job"     // Job lifecycle events (JSON)
	CategoryError   LogCategory = "error"   // Application errors (JSON)
	CategoryProcess LogCategory = "process" // Raw yt-dlp output (plain text)
)

// Categories lists every category written under the logs directory
var Categories = []LogCategory{CategoryJob, CategoryError, CategoryProcess}

// ValidCategory checks if a category name is known
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if string(c) == name {
			return true
		}
	}
	return false
}

// MultiLogger provides categorized logging with one file per category and day.
// The process category is not a zap logger: runners append raw tool output to the
// file returned by OpenProcessLog.
type MultiLogger struct {
	loggers     map[LogCategory]*zap.Logger
	files       map[LogCategory]*os.File
	config      MultiLoggerConfig
	mu          sync.RWMutex
	processMu   sync.Mutex
	currentDate string
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*zap.Logger),
		files:   make(map[LogCategory]*os.File),
		config:  config,
	}

	if err := ml.openAll(dateString(time.Now())); err != nil {
		ml.Close()
		return nil, err
	}

	return ml, nil
}

// openAll (re)creates the structured loggers for the given day. Caller holds mu or owns ml.
func (ml *MultiLogger) openAll(date string) error {
	level, err := zapcore.ParseLevel(ml.config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	levels := map[LogCategory]zapcore.Level{
		CategoryJob:   level,
		CategoryError: zapcore.ErrorLevel,
	}

	for category, lvl := range levels {
		logger, file, err := ml.createStructuredLogger(category, date, lvl)
		if err != nil {
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		if old, ok := ml.files[category]; ok {
			_ = ml.loggers[category].Sync()
			old.Close()
		}
		ml.loggers[category] = logger
		ml.files[category] = file
	}

	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*zap.Logger, *os.File, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	file, err := os.OpenFile(categoryLogPath(ml.config.LogsDir, category, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return zap.New(core), file, nil
}

// rotate switches to new files when the day has changed
func (ml *MultiLogger) rotate() {
	today := dateString(time.Now())

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if current == today {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.currentDate == today {
		return
	}
	if err := ml.openAll(today); err != nil {
		fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
	}
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}

	// Return error logger as fallback
	return ml.loggers[CategoryError]
}

// Job returns the job lifecycle logger (JSON format)
func (ml *MultiLogger) Job() *zap.Logger {
	return ml.GetLogger(CategoryJob)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (cleanup failures, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogJobEvent logs a job lifecycle event with structured data
func (ml *MultiLogger) LogJobEvent(event string, fields ...zap.Field) {
	ml.Job().Info(event, fields...)
}

// ProcessLog is an open handle on today's process log. Writes from concurrent
// invocations are serialized line by line.
type ProcessLog struct {
	file *os.File
	mu   *sync.Mutex
}

// OpenProcessLog opens today's process log for appending
func (ml *MultiLogger) OpenProcessLog() (*ProcessLog, error) {
	path := categoryLogPath(ml.config.LogsDir, CategoryProcess, dateString(time.Now()))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open process log: %w", err)
	}
	return &ProcessLog{file: file, mu: &ml.processMu}, nil
}

// WriteLine appends one line of tool output
func (pl *ProcessLog) WriteLine(line string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.file.WriteString(line + "\n")
}

// Close closes the handle
func (pl *ProcessLog) Close() error {
	return pl.file.Close()
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for category, logger := range ml.loggers {
		_ = logger.Sync()
		if file, ok := ml.files[category]; ok {
			if err := file.Close(); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

func dateString(t time.Time) string {
	return t.Format("20060102")
}

func categoryLogPath(dir string, category LogCategory, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", category, date))
}
