package flow

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// RunContext is the ephemeral per-invocation state: resolved directories,
// thread count, and generated file paths. One RunContext is owned by exactly
// one orchestrator invocation; the directories persist as artifacts, the
// in-memory context does not.
type RunContext struct {
	RunID          string
	Design         string
	BackendID      string
	RunDir         string
	ResultsDir     string
	ReportsDir     string
	CheckpointsDir string
	ScriptPath     string
	LogPath        string
	NumThreads     int

	released bool
}

// runDirRegistry tracks run directories claimed by in-flight invocations.
// Concurrent runs against the same output directories would silently
// interleave artifacts, so a collision is rejected at construction.
// Process-local: cross-process locking is the caller's concern.
var runDirRegistry = struct {
	mu   sync.Mutex
	dirs map[string]string // abs run dir -> run ID
}{dirs: map[string]string{}}

// NewRunContext resolves all paths for a run and claims the run directory.
// The directory layout is part of the external contract:
//
//	<base>/<design>_<backend>/results/
//	<base>/<design>_<backend>/reports/post_<stage>/
//	<base>/<design>_<backend>/checkpoints/
func NewRunContext(baseDir, designName, backendID, scriptExt string, nthreads int) (*RunContext, error) {
	runDir, err := filepath.Abs(filepath.Join(baseDir, fmt.Sprintf("%s_%s", designName, backendID)))
	if err != nil {
		return nil, NewConfigurationError(CodeInvalidOptions, fmt.Sprintf("cannot resolve run directory: %v", err))
	}

	id := uuid.New().String()

	runDirRegistry.mu.Lock()
	if owner, busy := runDirRegistry.dirs[runDir]; busy {
		runDirRegistry.mu.Unlock()
		return nil, NewConfigurationError(CodeDirCollision,
			fmt.Sprintf("run directory %s is in use by run %s", runDir, owner)).
			WithMeta("run_dir", runDir)
	}
	runDirRegistry.dirs[runDir] = id
	runDirRegistry.mu.Unlock()

	return &RunContext{
		RunID:          id,
		Design:         designName,
		BackendID:      backendID,
		RunDir:         runDir,
		ResultsDir:     filepath.Join(runDir, "results"),
		ReportsDir:     filepath.Join(runDir, "reports"),
		CheckpointsDir: filepath.Join(runDir, "checkpoints"),
		ScriptPath:     filepath.Join(runDir, "run"+scriptExt),
		LogPath:        filepath.Join(runDir, "backend_stdout.log"),
		NumThreads:     nthreads,
	}, nil
}

// StageReportDir returns the per-stage report directory (reports/post_<stage>).
func (rc *RunContext) StageReportDir(stage Stage) string {
	return filepath.Join(rc.ReportsDir, "post_"+string(stage))
}

// CheckpointPath returns the tool-native checkpoint path for a stage.
func (rc *RunContext) CheckpointPath(stage Stage, ext string) string {
	return filepath.Join(rc.CheckpointsDir, "post_"+string(stage)+ext)
}

// ResultsJSONPath is where the orchestrator dumps the final results document.
func (rc *RunContext) ResultsJSONPath() string {
	return filepath.Join(rc.RunDir, "results.json")
}

// Release returns the run directory to the pool. Idempotent.
// The orchestrator calls this when the invocation ends, successful or not.
func (rc *RunContext) Release() {
	if rc.released {
		return
	}
	rc.released = true
	runDirRegistry.mu.Lock()
	if runDirRegistry.dirs[rc.RunDir] == rc.RunID {
		delete(runDirRegistry.dirs, rc.RunDir)
	}
	runDirRegistry.mu.Unlock()
}
