package flow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// FatalMarker is the line prefix the renderers emit when the backend fails
// to read a source file. Every file-read inside a generated script is
// guarded so the first read failure aborts the whole run; a run that
// continues with missing files produces a misleadingly healthy netlist.
const FatalMarker = "HDLFLOW_FATAL:"

// diagnosticTailLines is how much captured output a ToolError carries.
const diagnosticTailLines = 30

// CapturedLog is the line-oriented sink for the backend's interleaved
// stdout/stderr stream. Safe for concurrent append and read.
type CapturedLog struct {
	mu    sync.Mutex
	lines []string
}

func NewCapturedLog() *CapturedLog {
	return &CapturedLog{}
}

func (c *CapturedLog) Append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Lines returns a copy of the captured lines in arrival order.
func (c *CapturedLog) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.lines...)
}

// Tail returns the last n captured lines.
func (c *CapturedLog) Tail(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.lines) {
		return append([]string{}, c.lines...)
	}
	return append([]string{}, c.lines[len(c.lines)-n:]...)
}

// FirstWithPrefix returns the first captured line with the given prefix.
func (c *CapturedLog) FirstWithPrefix(prefix string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.HasPrefix(l, prefix) {
			return l, true
		}
	}
	return "", false
}

// Runner launches the backend toolchain against a rendered script and
// supervises it: directory creation, output streaming, timeout and
// cancellation. No retries at this layer.
type Runner struct {
	l *slog.Logger
}

func NewRunner(l *slog.Logger) *Runner {
	return &Runner{l: l}
}

// Run writes the script, creates the declared output directories, launches
// the backend subprocess and streams its combined output into a CapturedLog
// until the process ends. Directory creation is idempotent.
//
// Failure classification:
//   - ctx cancelled        -> ToolError CANCELLED (process is killed, not abandoned)
//   - wall-clock timeout   -> ToolError TIMEOUT
//   - guarded read failed  -> ToolError FILE_READ, tagged with the file path
//   - non-zero exit        -> ToolError NON_ZERO_EXIT with the output tail
func (r *Runner) Run(ctx context.Context, def FlowDefinition, b Backend, script string, rc *RunContext, opts Options) (*CapturedLog, error) {
	if err := r.prepareDirs(def, rc); err != nil {
		return nil, err
	}
	if err := os.WriteFile(rc.ScriptPath, []byte(script), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write control script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	name, args := b.Command(rc.ScriptPath, opts)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = rc.RunDir
	cmd.WaitDelay = 5 * time.Second

	// Both streams share one pipe so interleaving order is preserved for
	// the report parser.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	capture := NewCapturedLog()
	logFile, err := os.Create(rc.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend log file: %w", err)
	}
	defer logFile.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			capture.Append(line)
			fmt.Fprintln(logFile, line)
		}
	}()

	r.l.Info("launching backend", "backend", b.ID(), "command", name, "run_id", rc.RunID, "run_dir", rc.RunDir)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		pw.Close()
		<-done
		return capture, NewToolError(CodeSpawnFailed,
			fmt.Sprintf("failed to launch %s: %v", name, err)).WithCause(err)
	}

	waitErr := cmd.Wait()
	pw.Close()
	<-done
	elapsed := time.Since(start)

	if fatal, ok := capture.FirstWithPrefix(FatalMarker); ok {
		path := strings.TrimSpace(strings.TrimPrefix(fatal, FatalMarker))
		return capture, NewToolError(CodeFileRead,
			fmt.Sprintf("backend failed to read %s", path)).
			WithMeta("path", path).
			WithDiagnostics(capture.Tail(diagnosticTailLines))
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.l.Error("backend timed out", "backend", b.ID(), "timeout", opts.Timeout, "run_id", rc.RunID)
		return capture, NewToolError(CodeTimeout,
			fmt.Sprintf("backend exceeded timeout of %s", opts.Timeout)).
			WithCause(runCtx.Err()).
			WithDiagnostics(capture.Tail(diagnosticTailLines))
	}
	if ctx.Err() != nil {
		return capture, NewToolError(CodeCancelled, "run cancelled").
			WithCause(ctx.Err()).
			WithDiagnostics(capture.Tail(diagnosticTailLines))
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		r.l.Error("backend exited with error", "backend", b.ID(), "exit_code", exitCode, "elapsed", elapsed)
		return capture, NewToolError(CodeNonZeroExit,
			fmt.Sprintf("%s exited with code %d", name, exitCode)).
			WithCause(waitErr).
			WithExitCode(exitCode).
			WithDiagnostics(capture.Tail(diagnosticTailLines))
	}

	r.l.Info("backend finished", "backend", b.ID(), "elapsed", elapsed, "lines_captured", len(capture.Lines()))
	return capture, nil
}

// prepareDirs creates the declared artifact directories. Pre-existing
// directories are not an error: re-running into the same run dir is allowed
// once the previous invocation has released it.
func (r *Runner) prepareDirs(def FlowDefinition, rc *RunContext) error {
	dirs := []string{rc.RunDir, rc.ResultsDir, rc.ReportsDir, rc.CheckpointsDir}
	for _, stage := range def.ReportedStages() {
		dirs = append(dirs, rc.StageReportDir(stage))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
