package infrastructure

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/mediagrab-go/internal/domain"
	"github.com/yourusername/mediagrab-go/pkg/logger"
	"go.uber.org/zap"
)

const (
	stderrTailLines  = 20
	defaultWaitDelay = 5 * time.Second
)

// YTDLPRunner implements domain.ProcessRunner by spawning yt-dlp once per invocation
type YTDLPRunner struct {
	binary    string
	extraArgs []string
	parser    ProgressParser
	logs      *logger.MultiLogger // optional, receives raw output in the process log
	logger    *zap.Logger
	waitDelay time.Duration
}

// NewYTDLPRunner creates a new yt-dlp runner
func NewYTDLPRunner(config *domain.DownloadConfig, logs *logger.MultiLogger, log *zap.Logger) *YTDLPRunner {
	return &YTDLPRunner{
		binary:    config.YTDLPBinary,
		extraArgs: config.ExtraArgs,
		parser:    PercentParser{},
		logs:      logs,
		logger:    log,
		waitDelay: defaultWaitDelay,
	}
}

// Run executes one invocation and blocks until it is terminal.
// Success requires exit code 0 and a non-empty file at the expected output path.
func (r *YTDLPRunner) Run(ctx context.Context, spec *domain.ResolvedJobSpec, target domain.RunTarget, onProgress domain.ProgressFunc) (*domain.RunResult, error) {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	result := &domain.RunResult{
		State:      domain.RunNotStarted,
		ExitCode:   -1,
		OutputPath: spec.ExpectedPath(target.Template),
	}

	if err := os.MkdirAll(filepath.Dir(result.OutputPath), 0755); err != nil {
		return r.fail(result, domain.RunReasonStart, domain.NewJobError(domain.ErrorKindInternal, "", fmt.Errorf("failed to create output directory: %w", err)))
	}

	args := buildDownloadArgs(spec, target, r.extraArgs)

	plog := r.openProcessLog()
	if plog != nil {
		defer plog.Close()
		writeLogHeader(plog, target, ShellEscapeCommand(r.binary, args...))
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = spec.WorkDir
	setProcessGroup(cmd)
	cmd.WaitDelay = r.waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.fail(result, domain.RunReasonStart, domain.NewJobError(domain.ErrorKindInternal, "", fmt.Errorf("failed to get stdout pipe: %w", err)))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.fail(result, domain.RunReasonStart, domain.NewJobError(domain.ErrorKindInternal, "", fmt.Errorf("failed to get stderr pipe: %w", err)))
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		writeLogFooter(plog, false, fmt.Sprintf("failed to start: %v", err))
		if ctx.Err() != nil {
			return r.fail(result, domain.RunReasonCancelled, domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err()))
		}
		return r.fail(result, domain.RunReasonStart, domain.NewJobError(domain.ErrorKindDownload, "", fmt.Errorf("failed to start %s: %w", r.binary, err)))
	}
	result.State, _ = result.State.Next(domain.RunRunning)

	// Both pipes are drained while the child runs; Wait is only called once they hit EOF.
	var progressMu sync.Mutex
	report := func(line string) {
		if p, ok := r.parser.Parse(line); ok {
			progressMu.Lock()
			onProgress(p)
			progressMu.Unlock()
		}
	}
	tail := newLineTail(stderrTailLines)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		drain(stdout, func(line string) {
			report(line)
			if plog != nil {
				plog.WriteLine(line)
			}
		})
	}()
	go func() {
		defer wg.Done()
		drain(stderr, func(line string) {
			report(line)
			tail.add(line)
			if plog != nil {
				plog.WriteLine("[stderr] " + line)
			}
		})
	}()

	r.waitForDrain(ctx, &wg, stdout, stderr)
	waitErr := cmd.Wait()
	result.Duration = time.Since(start)
	result.StderrTail = tail.lines()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case ctx.Err() != nil:
		writeLogFooter(plog, false, "cancelled")
		removePartials(result.OutputPath)
		return r.fail(result, domain.RunReasonCancelled, domain.NewJobError(domain.ErrorKindCancelled, "", ctx.Err()))

	case waitErr != nil:
		writeLogFooter(plog, false, fmt.Sprintf("yt-dlp failed: %v", waitErr))
		removePartials(result.OutputPath)
		return r.fail(result, domain.RunReasonExit, domain.NewJobError(domain.ErrorKindDownload, "", fmt.Errorf("yt-dlp failed: %w", waitErr)))
	}

	info, err := os.Stat(result.OutputPath)
	if err != nil || info.Size() == 0 || !info.Mode().IsRegular() {
		writeLogFooter(plog, false, "expected output missing: "+result.OutputPath)
		removePartials(result.OutputPath)
		return r.fail(result, domain.RunReasonMissingOutput, domain.NewJobError(domain.ErrorKindDownload, "", fmt.Errorf("yt-dlp exited 0 but %s is missing or empty", result.OutputPath)))
	}

	result.State, _ = result.State.Next(domain.RunSucceeded)
	writeLogFooter(plog, true, "Downloaded: "+result.OutputPath)
	return result, nil
}

// waitForDrain returns once both pipes reached EOF. After cancellation the pipes
// are force-closed if a stray child keeps them open past waitDelay.
func (r *YTDLPRunner) waitForDrain(ctx context.Context, wg *sync.WaitGroup, pipes ...io.Closer) {
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return
	case <-ctx.Done():
	}

	select {
	case <-drained:
	case <-time.After(r.waitDelay):
		for _, p := range pipes {
			p.Close()
		}
		<-drained
	}
}

func (r *YTDLPRunner) fail(result *domain.RunResult, reason string, err error) (*domain.RunResult, error) {
	result.State, _ = result.State.Next(domain.RunFailed)
	result.Reason = reason
	if r.logger != nil {
		r.logger.Warn("yt-dlp run failed",
			zap.String("reason", reason),
			zap.Int("exit_code", result.ExitCode),
			zap.String("output", result.OutputPath),
			zap.Strings("stderr_tail", result.StderrTail),
			zap.Error(err))
	}
	return result, err
}

func (r *YTDLPRunner) openProcessLog() *logger.ProcessLog {
	if r.logs == nil {
		return nil
	}
	plog, err := r.logs.OpenProcessLog()
	if err != nil {
		r.logs.LogAppError("Failed to open process log", zap.Error(err))
		return nil
	}
	return plog
}

// drain reads r until EOF, handing every \n or \r terminated line to fn
func drain(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			fn(line)
		}
	}
	// an over-long line stops the scanner; keep reading so the child never blocks
	io.Copy(io.Discard, r)
}

// removePartials deletes the expected output and any sibling with the same stem
// (.part, .ytdl, intermediate streams)
func removePartials(expected string) {
	dir := filepath.Dir(expected)
	stem := strings.TrimSuffix(filepath.Base(expected), filepath.Ext(expected))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), stem+".") {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

func writeLogHeader(plog *logger.ProcessLog, target domain.RunTarget, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	label := target.JobID
	if target.PlaylistItem > 0 {
		label = fmt.Sprintf("%s item %d", target.JobID, target.PlaylistItem)
	}
	plog.WriteLine(fmt.Sprintf("=== [%s] Job: %s ===", timestamp, label))
	plog.WriteLine("$ " + cmdLine)
}

func writeLogFooter(plog *logger.ProcessLog, success bool, message string) {
	if plog == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	plog.WriteLine(fmt.Sprintf("[%s] %s: %s", timestamp, status, message))
	plog.WriteLine("=== END ===")
}

// lineTail keeps the last n lines written to it
type lineTail struct {
	mu    sync.Mutex
	n     int
	items []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, line)
	if len(t.items) > t.n {
		t.items = t.items[len(t.items)-t.n:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.items...)
}

var _ domain.ProcessRunner = (*YTDLPRunner)(nil)
