package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/mediagrab-go/api"
	"github.com/yourusername/mediagrab-go/api/handlers"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"github.com/yourusername/mediagrab-go/internal/infrastructure"
	"github.com/yourusername/mediagrab-go/pkg/logger"
)

var version = "dev"

const (
	progressBuffer  = 32
	shutdownTimeout = 30 * time.Second
)

var (
	serverMode  = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground  = flag.Bool("foreground", false, "Run in the foreground instead of detaching")
	configPath  = flag.String("config", "", "Path to config file")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
)

func main() {
	flag.Parse()

	if *writeConfig != "" {
		if err := writeEffectiveConfig(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	logs, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer logs.Close()

	handlers.Version = version
	log.Info("Starting mediagrab server",
		zap.String("version", version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("base_dir", config.Download.BaseDir),
		zap.String("settings_backend", config.Settings.Backend),
		zap.Int("max_concurrent_jobs", config.Download.MaxConcurrentJobs))

	settings, closeSettings, err := openSettingsStore(config, log)
	if err != nil {
		return err
	}
	defer closeSettings()

	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	manager := app.NewJobManager(app.JobManagerDeps{
		Runner:      infrastructure.NewYTDLPRunner(&config.Download, logs, log),
		Fetcher:     infrastructure.NewYTDLPMetadataFetcher(&config.Download, log),
		Archiver:    infrastructure.NewZipArchiver(),
		Settings:    settings,
		Broadcaster: app.NewBroadcaster(progressBuffer, log),
		Notifier:    notifier,
		Logs:        logs,
	}, &config.Download, log)

	janitor := app.NewJanitor(manager, &config.Download, log)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}
	defer janitor.Stop()

	router := api.SetupRouter(api.RouterDeps{
		Manager: manager,
		Config:  config,
		Logs:    logs,
		Logger:  log,
		Ready:   readyCheck(config),
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Cancelling jobs first ends in-flight downloads and progress streams
	if err := manager.Shutdown(ctx); err != nil {
		log.Error("Jobs did not stop in time", zap.Error(err))
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}

// writeEffectiveConfig dumps the loaded configuration, defaults included, as a starting config file
func writeEffectiveConfig(path string) error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := app.SaveConfig(config, path); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

// openSettingsStore opens the configured backend and returns its closer
func openSettingsStore(config *domain.Config, log *zap.Logger) (domain.SettingsStore, func(), error) {
	switch config.Settings.Backend {
	case domain.SettingsBackendSQLite:
		store, err := infrastructure.NewSQLiteSettingsStore(config.Settings.Path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open settings database: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn("Failed to close settings database", zap.Error(err))
			}
		}, nil
	default:
		return infrastructure.NewFileSettingsStore(config.Settings.Path, log), func() {}, nil
	}
}

// readyCheck reports whether yt-dlp is callable and the base directory is writable
func readyCheck(config *domain.Config) handlers.ReadyCheck {
	return func() error {
		if _, err := exec.LookPath(config.Download.YTDLPBinary); err != nil {
			return fmt.Errorf("yt-dlp not found: %w", err)
		}
		tmp, err := os.CreateTemp(config.Download.JobsDir(), ".ready-*")
		if err != nil {
			return fmt.Errorf("jobs directory not writable: %w", err)
		}
		tmp.Close()
		os.Remove(tmp.Name())
		return nil
	}
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Download.JobsDir(),
		config.Download.FailedDir(),
		config.Download.LogsDir(),
		config.Download.ConfigDir(),
		filepath.Dir(config.Settings.Path),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
