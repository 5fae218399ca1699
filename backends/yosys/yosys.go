// Package yosys drives the open synthesis toolchain: yosys for synthesis
// and nextpnr for place-and-route, sequenced by a generated shell control
// script. Reports are JSON artifacts rather than prose.
package yosys

import (
	"fmt"
	"sort"

	"hdlflow/flow"
)

const BackendID = "yosys"

// partInfo describes one supported device: its nextpnr binary, the device
// flag, and the package flag.
type partInfo struct {
	arch       string // "ice40" or "ecp5"
	pnrBinary  string
	deviceFlag string
	pkg        string
}

var parts = map[string]partInfo{
	"hx1k":      {arch: "ice40", pnrBinary: "nextpnr-ice40", deviceFlag: "--hx1k", pkg: "tq144"},
	"hx8k":      {arch: "ice40", pnrBinary: "nextpnr-ice40", deviceFlag: "--hx8k", pkg: "ct256"},
	"up5k":      {arch: "ice40", pnrBinary: "nextpnr-ice40", deviceFlag: "--up5k", pkg: "sg48"},
	"lfe5u-25f": {arch: "ecp5", pnrBinary: "nextpnr-ecp5", deviceFlag: "--25k", pkg: "CABGA256"},
	"lfe5u-45f": {arch: "ecp5", pnrBinary: "nextpnr-ecp5", deviceFlag: "--45k", pkg: "CABGA381"},
	"lfe5u-85f": {arch: "ecp5", pnrBinary: "nextpnr-ecp5", deviceFlag: "--85k", pkg: "CABGA381"},
}

// suppressedWarnings are benign yosys warning prefixes excluded from the
// critical-warning count. The tool has no numeric message IDs; prefixes are
// the stable identifier it offers.
var suppressedWarnings = []string{
	"Warning: Replacing memory",
	"Warning: Ignoring module",
	"Warning: Resizing cell port",
}

// Backend implements flow.Backend for the yosys/nextpnr toolchain.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (b *Backend) ID() string {
	return BackendID
}

func (b *Backend) SupportedParts() []string {
	out := make([]string, 0, len(parts))
	for p := range parts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (b *Backend) Capabilities() flow.Capabilities {
	return flow.Capabilities{
		PerFileVersion: false,
		// No VHDL front end; netlist-json is native.
		Dialects: []flow.Dialect{flow.DialectVerilog, flow.DialectNetlistJSON},
		// nextpnr takes pin constraints (PCF/LPF); SDC-style timing
		// constraint files are not accepted, the clock is a --freq flag.
		ConstraintKinds: []flow.ConstraintKind{flow.ConstraintPhysical},
		ScriptExt:       ".sh",
	}
}

func (b *Backend) Command(scriptPath string, opts flow.Options) (string, []string) {
	return "sh", []string{scriptPath}
}

func lookupPart(part string) (partInfo, error) {
	info, ok := parts[part]
	if !ok {
		keys := make([]string, 0, len(parts))
		for p := range parts {
			keys = append(keys, p)
		}
		sort.Strings(keys)
		return partInfo{}, flow.NewConfigurationError(flow.CodeUnsupportedPart,
			fmt.Sprintf("part %q is not supported (supported: %v)", part, keys))
	}
	return info, nil
}
