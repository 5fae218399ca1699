// Package quartus drives the Quartus-class project-based toolchain through
// a generated quartus_sh Tcl script.
package quartus

import (
	"hdlflow/flow"
)

const BackendID = "quartus"

var supportedParts = []string{
	"ep4ce22f17c6",
	"ep4cgx150df31c7",
	"5csema5f31c6",
	"5cseba6u23i7",
	"10m50daf484c7g",
	"10cl025yu256i7g",
}

// suppressedWarningIDs are known-benign critical-warning numbers excluded
// from the count. The tool prints them on virtually every compile.
var suppressedWarningIDs = []string{
	"306004", // ignored power pin connection
	"15714",  // some pins have nothing driving them
	"169177", // pins demoted to use default I/O standard
}

// optimizationMode maps a strategy to the project-wide optimization mode
// assignment. Debug and Runtime use the fast fitter preset instead of an
// optimization mode; see RenderScript.
var optimizationMode = map[flow.Strategy]string{
	flow.StrategyDefault: "BALANCED",
	flow.StrategyPower:   "AGGRESSIVE POWER",
	flow.StrategyArea:    "AGGRESSIVE AREA",
}

// Backend implements flow.Backend for the Quartus-class toolchain.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) ID() string {
	return BackendID
}

func (b *Backend) SupportedParts() []string {
	return append([]string{}, supportedParts...)
}

func (b *Backend) Capabilities() flow.Capabilities {
	return flow.Capabilities{
		// VHDL_INPUT_VERSION is a project-wide assignment; per-file
		// language versions are not honored.
		PerFileVersion:  false,
		Dialects:        []flow.Dialect{flow.DialectVerilog, flow.DialectSystemVerilog, flow.DialectVHDL},
		ConstraintKinds: []flow.ConstraintKind{flow.ConstraintTiming, flow.ConstraintPhysical},
		ScriptExt:       ".tcl",
	}
}

func (b *Backend) Command(scriptPath string, opts flow.Options) (string, []string) {
	return "quartus_sh", []string{"-t", scriptPath}
}
