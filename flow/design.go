package flow

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Dialect identifies the hardware-description language of a source file.
type Dialect string

const (
	DialectVerilog       Dialect = "verilog"
	DialectSystemVerilog Dialect = "systemverilog"
	DialectVHDL          Dialect = "vhdl"
	DialectNetlistJSON   Dialect = "netlist-json"
)

// ParseDialect resolves a user-supplied dialect name, accepting common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verilog", "v":
		return DialectVerilog, nil
	case "systemverilog", "sv":
		return DialectSystemVerilog, nil
	case "vhdl", "vhd":
		return DialectVHDL, nil
	case "netlist-json", "json":
		return DialectNetlistJSON, nil
	default:
		return "", fmt.Errorf("unknown HDL dialect: %q", s)
	}
}

// InferDialect guesses the dialect from a file extension.
// Returns false when the extension is not recognized.
func InferDialect(path string) (Dialect, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".v":
		return DialectVerilog, true
	case ".sv", ".svh":
		return DialectSystemVerilog, true
	case ".vhd", ".vhdl":
		return DialectVHDL, true
	case ".json":
		return DialectNetlistJSON, true
	default:
		return "", false
	}
}

// SourceFile is one design source. Immutable once the Design is built.
//
// Version is a per-file language-version override (e.g. "2008" for VHDL).
// Not every backend honors per-file overrides; see Capabilities.PerFileVersion.
// Backends that only accept a global switch use Design.VHDLStd instead.
type SourceFile struct {
	Path           string  `yaml:"path"`
	Dialect        Dialect `yaml:"dialect"`
	Version        string  `yaml:"version,omitempty"`
	SimulationOnly bool    `yaml:"simulation_only,omitempty"`
}

// ConstraintKind classifies a constraint file.
type ConstraintKind string

const (
	ConstraintTiming   ConstraintKind = "timing"
	ConstraintPhysical ConstraintKind = "physical"
)

// ConstraintFile is a timing or pin/physical constraint input.
// Which kinds are accepted is backend-specific (Capabilities.ConstraintKinds).
type ConstraintFile struct {
	Path string         `yaml:"path"`
	Kind ConstraintKind `yaml:"kind"`
}

// Clock describes the primary clock of the design.
type Clock struct {
	Port     string  `yaml:"port"`
	PeriodNs float64 `yaml:"period"`
}

// Design is the immutable description of one hardware design.
// Constructed once per invocation from the project file and read-only after.
type Design struct {
	Name        string           `yaml:"name"`
	Top         string           `yaml:"top"`
	Clock       *Clock           `yaml:"clock,omitempty"`
	VHDLStd     string           `yaml:"vhdl_std,omitempty"`
	Generics    map[string]any   `yaml:"generics,omitempty"`
	Sources     []SourceFile     `yaml:"sources"`
	Constraints []ConstraintFile `yaml:"constraints,omitempty"`
}

// Validate checks the structural invariants of the design.
// An empty synthesizable source list is a configuration error: a run without
// sources would otherwise fail deep inside the backend with a confusing message.
func (d *Design) Validate() error {
	if d.Name == "" {
		return NewConfigurationError(CodeInvalidDesign, "design name is required")
	}
	if d.Top == "" {
		return NewConfigurationError(CodeInvalidDesign, fmt.Sprintf("design %q: top-level unit is required", d.Name))
	}
	if len(d.SynthSources()) == 0 {
		return NewConfigurationError(CodeEmptySources, fmt.Sprintf("design %q has no synthesizable source files", d.Name))
	}
	for _, s := range d.Sources {
		if s.Path == "" {
			return NewConfigurationError(CodeInvalidDesign, fmt.Sprintf("design %q: source file with empty path", d.Name))
		}
		switch s.Dialect {
		case DialectVerilog, DialectSystemVerilog, DialectVHDL, DialectNetlistJSON:
		case "":
			return NewConfigurationError(CodeInvalidDesign, fmt.Sprintf("source %q has no dialect", s.Path))
		default:
			return NewConfigurationError(CodeUnsupportedDialect, fmt.Sprintf("source %q has unknown dialect %q", s.Path, s.Dialect))
		}
	}
	for _, c := range d.Constraints {
		if c.Kind != ConstraintTiming && c.Kind != ConstraintPhysical {
			return NewConfigurationError(CodeInvalidDesign, fmt.Sprintf("constraint %q has unknown kind %q", c.Path, c.Kind))
		}
	}
	return nil
}

// SynthSources returns the sources that participate in synthesis,
// preserving their declared order. Simulation-only files are skipped.
func (d *Design) SynthSources() []SourceFile {
	out := make([]SourceFile, 0, len(d.Sources))
	for _, s := range d.Sources {
		if !s.SimulationOnly {
			out = append(out, s)
		}
	}
	return out
}

// ConstraintsOfKind returns constraint files of the given kind, in order.
func (d *Design) ConstraintsOfKind(kind ConstraintKind) []ConstraintFile {
	var out []ConstraintFile
	for _, c := range d.Constraints {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
