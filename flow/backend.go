package flow

import (
	"fmt"
	"sort"
	"strings"
)

// Capabilities records what a backend family can and cannot do.
// The data model carries per-file language versions, but not every backend
// honors them; the flag documents the limitation instead of guessing.
type Capabilities struct {
	// PerFileVersion is true when the backend accepts a language-version
	// switch per source file. When false only the design-global version
	// (Design.VHDLStd) is emitted.
	PerFileVersion bool
	// Dialects the backend can ingest.
	Dialects []Dialect
	// ConstraintKinds the backend accepts; other kinds are silently skipped
	// by the renderer (and reported as diagnostics by the orchestrator).
	ConstraintKinds []ConstraintKind
	// ScriptExt is the control-script file extension (".tcl", ".sh", ...).
	ScriptExt string
}

// SupportsDialect reports whether the backend ingests the dialect.
func (c Capabilities) SupportsDialect(d Dialect) bool {
	for _, x := range c.Dialects {
		if x == d {
			return true
		}
	}
	return false
}

// SupportsConstraint reports whether the backend accepts the constraint kind.
func (c Capabilities) SupportsConstraint(k ConstraintKind) bool {
	for _, x := range c.ConstraintKinds {
		if x == k {
			return true
		}
	}
	return false
}

// Backend is one synthesis toolchain family. The core never talks to the
// backend except through a rendered script and the files/output it produces.
type Backend interface {
	// ID is the backend identifier used in flow definitions ("vivado", ...).
	ID() string
	// SupportedParts lists the device/part identifiers this backend accepts.
	SupportedParts() []string
	// Capabilities describes dialect/constraint/version support.
	Capabilities() Capabilities
	// RenderScript produces the exact control-script text for a run.
	// Pure: no side effects, byte-identical output for identical inputs.
	RenderScript(def FlowDefinition, d Design, opts Options, rc *RunContext) (string, error)
	// Command returns the subprocess invocation for a rendered script.
	Command(scriptPath string, opts Options) (name string, args []string)
	// ParseReports extracts metrics and diagnostics from the report
	// artifacts and the captured output stream of a finished run.
	ParseReports(rc *RunContext, log *CapturedLog) (Metrics, []string, error)
}

// SupportsPart checks a part identifier against the backend's supported list.
func SupportsPart(b Backend, part string) bool {
	for _, p := range b.SupportedParts() {
		if strings.EqualFold(p, part) {
			return true
		}
	}
	return false
}

// Registry holds the registered backends, keyed by ID.
type Registry struct {
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend. Later registrations replace earlier ones.
func (r *Registry) Register(b Backend) {
	r.backends[b.ID()] = b
}

// Get looks up a backend, returning a ConfigurationError naming the
// registered IDs when it does not exist.
func (r *Registry) Get(id string) (Backend, error) {
	b, ok := r.backends[id]
	if !ok {
		return nil, NewConfigurationError(CodeUnknownBackend,
			fmt.Sprintf("unknown backend %q (registered: %s)", id, strings.Join(r.IDs(), ", ")))
	}
	return b, nil
}

// IDs returns the registered backend IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
