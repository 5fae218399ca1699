package flow

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// fakeBackend runs its rendered "script" with /bin/sh so runner and
// orchestrator behavior can be tested without a real toolchain.
type fakeBackend struct {
	id       string
	parts    []string
	script   string
	metrics  Metrics
	diags    []string
	parseErr error
}

func (f *fakeBackend) ID() string { return f.id }

func (f *fakeBackend) SupportedParts() []string { return f.parts }

func (f *fakeBackend) Capabilities() Capabilities {
	return Capabilities{
		Dialects:        []Dialect{DialectVerilog, DialectSystemVerilog, DialectVHDL},
		ConstraintKinds: []ConstraintKind{ConstraintTiming},
		ScriptExt:       ".sh",
	}
}

func (f *fakeBackend) RenderScript(def FlowDefinition, d Design, opts Options, rc *RunContext) (string, error) {
	return f.script, nil
}

func (f *fakeBackend) Command(scriptPath string, opts Options) (string, []string) {
	return "/bin/sh", []string{scriptPath}
}

func (f *fakeBackend) ParseReports(rc *RunContext, log *CapturedLog) (Metrics, []string, error) {
	return f.metrics, f.diags, f.parseErr
}

func newFakeBackend(script string) *fakeBackend {
	return &fakeBackend{id: "fake", parts: []string{"testpart"}, script: script}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts, err := DecodeOptions(map[string]any{"part": "testpart"})
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	return opts
}

func runScript(t *testing.T, ctx context.Context, script string, opts Options) (*CapturedLog, *RunContext, error) {
	t.Helper()
	b := newFakeBackend(script)
	rc, err := NewRunContext(t.TempDir(), "dut", b.ID(), ".sh", 1)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	t.Cleanup(rc.Release)
	def := NewFlowDefinition(b.ID(), StrategyDefault)
	capture, runErr := NewRunner(discardLogger()).Run(ctx, def, b, script, rc, opts)
	return capture, rc, runErr
}

func TestRunnerCapturesOutputInOrder(t *testing.T) {
	script := "echo first\necho second >&2\necho third\n"
	capture, rc, err := runScript(t, context.Background(), script, testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := capture.Lines()
	if len(lines) != 3 || lines[0] != "first" || lines[1] != "second" || lines[2] != "third" {
		t.Errorf("captured lines = %v", lines)
	}

	// The same stream lands in the log file.
	data, err := os.ReadFile(rc.LogPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if string(data) != "first\nsecond\nthird\n" {
		t.Errorf("log file = %q", string(data))
	}

	// The script was materialized in the run directory.
	if _, err := os.Stat(rc.ScriptPath); err != nil {
		t.Errorf("control script not written: %v", err)
	}
}

func TestRunnerCreatesArtifactDirs(t *testing.T) {
	_, rc, err := runScript(t, context.Background(), "true\n", testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, dir := range []string{
		rc.ResultsDir,
		rc.CheckpointsDir,
		rc.StageReportDir(StageSynth),
		rc.StageReportDir(StagePlace),
		rc.StageReportDir(StageRoute),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing artifact directory %s: %v", dir, err)
		}
	}

	// Re-running into existing directories is not an error.
	b := newFakeBackend("true\n")
	def := NewFlowDefinition(b.ID(), StrategyDefault)
	if _, err := NewRunner(discardLogger()).Run(context.Background(), def, b, "true\n", rc, testOptions(t)); err != nil {
		t.Errorf("second run into same directories failed: %v", err)
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	script := "echo some output\necho about to fail\nexit 3\n"
	capture, _, err := runScript(t, context.Background(), script, testOptions(t))
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeNonZeroExit {
		t.Errorf("code = %s, want %s", te.Code, CodeNonZeroExit)
	}
	if te.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", te.ExitCode)
	}
	if len(te.Diagnostics) == 0 {
		t.Error("no diagnostic tail on non-zero exit")
	}
	if got := capture.Lines(); len(got) != 2 {
		t.Errorf("captured lines = %v", got)
	}
}

func TestRunnerFatalMarker(t *testing.T) {
	// A guarded read failure outranks plain non-zero-exit classification.
	script := "echo '" + FatalMarker + " rtl/missing.v'\nexit 2\n"
	_, _, err := runScript(t, context.Background(), script, testOptions(t))
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeFileRead {
		t.Errorf("code = %s, want %s", te.Code, CodeFileRead)
	}
	if te.Meta["path"] != "rtl/missing.v" {
		t.Errorf("path meta = %v", te.Meta["path"])
	}
}

func TestRunnerTimeout(t *testing.T) {
	opts := testOptions(t)
	opts.Timeout = time.Second
	start := time.Now()
	_, _, err := runScript(t, context.Background(), "sleep 30\n", opts)
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeTimeout {
		t.Errorf("code = %s, want %s", te.Code, CodeTimeout)
	}
	if elapsed := time.Since(start); elapsed > 15*time.Second {
		t.Errorf("process not killed on timeout, took %s", elapsed)
	}
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	_, _, err := runScript(t, ctx, "sleep 30\n", testOptions(t))
	te, ok := AsToolError(err)
	if !ok {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.Code != CodeCancelled {
		t.Errorf("code = %s, want %s", te.Code, CodeCancelled)
	}
}

func TestRunnerSpawnFailure(t *testing.T) {
	b := newFakeBackend("true\n")
	rc, err := NewRunContext(t.TempDir(), "dut", b.ID(), ".sh", 1)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	defer rc.Release()

	broken := &brokenCommandBackend{fakeBackend: b}
	def := NewFlowDefinition(b.ID(), StrategyDefault)
	_, runErr := NewRunner(discardLogger()).Run(context.Background(), def, broken, "true\n", rc, testOptions(t))
	te, ok := AsToolError(runErr)
	if !ok || te.Code != CodeSpawnFailed {
		t.Fatalf("expected %s, got %v", CodeSpawnFailed, runErr)
	}
}

type brokenCommandBackend struct {
	*fakeBackend
}

func (b *brokenCommandBackend) Command(scriptPath string, opts Options) (string, []string) {
	return "/nonexistent/toolchain-binary", []string{scriptPath}
}

func TestCapturedLogHelpers(t *testing.T) {
	c := NewCapturedLog()
	for _, l := range []string{"a", "b", "c", "d"} {
		c.Append(l)
	}
	if tail := c.Tail(2); len(tail) != 2 || tail[0] != "c" || tail[1] != "d" {
		t.Errorf("Tail(2) = %v", tail)
	}
	if tail := c.Tail(10); len(tail) != 4 {
		t.Errorf("Tail(10) = %v", tail)
	}
	if _, ok := c.FirstWithPrefix("z"); ok {
		t.Error("FirstWithPrefix matched nothing")
	}
	c.Append(FatalMarker + " x.v")
	line, ok := c.FirstWithPrefix(FatalMarker)
	if !ok || !strings.Contains(line, "x.v") {
		t.Errorf("FirstWithPrefix = %q, %v", line, ok)
	}
}
