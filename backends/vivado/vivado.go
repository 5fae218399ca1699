// Package vivado drives the Vivado-class toolchain in non-project batch
// mode through a generated Tcl control script.
package vivado

import (
	"fmt"
	"sort"
	"strings"

	"hdlflow/flow"
)

const BackendID = "vivado"

// supportedParts is the device list this backend accepts. Checked both by
// the orchestrator (before rendering) and inside the generated script.
var supportedParts = []string{
	"xc7a12t",
	"xc7a35t",
	"xc7a50t",
	"xc7a100t",
	"xc7a200t",
	"xc7k70t",
	"xc7k160t",
	"xc7z010",
	"xc7z020",
	"xcku040",
}

// suppressedMsgIDs are known-benign message classes excluded from the
// critical-warning count and silenced in the generated script.
var suppressedMsgIDs = []string{
	"Synth 8-3331",  // unconnected port
	"Synth 8-7080",  // parallel synthesis criteria
	"Netlist 29-345", // update_timing on unrouted design
	"Timing 38-316",  // clock uncertainty on generated clock
	"Constraints 18-5210",
}

// stageOptions maps strategy -> stage -> default option string, spliced into
// the corresponding Tcl command. User-supplied per-stage option strings are
// appended after these.
var stageOptions = map[flow.Strategy]map[flow.Stage]string{
	flow.StrategyDefault: {
		flow.StageSynth:    "-flatten_hierarchy rebuilt -directive Default",
		flow.StageOpt:      "-directive ExploreWithRemap",
		flow.StagePlace:    "-directive Default",
		flow.StagePlaceOpt: "",
		flow.StagePhysOpt:  "-directive Default",
		flow.StageRoute:    "-directive Default",
	},
	flow.StrategyDebug: {
		flow.StageSynth: "-assert -debug_log -flatten_hierarchy none -no_timing_driven" +
			" -keep_equivalent_registers -no_lc -fsm_extraction off -directive RuntimeOptimized",
		flow.StagePlace: "-directive RuntimeOptimized",
		flow.StageRoute: "-directive RuntimeOptimized",
	},
	flow.StrategyRuntime: {
		flow.StageSynth: "-no_timing_driven -directive RuntimeOptimized",
		flow.StagePlace: "-directive RuntimeOptimized",
		flow.StageRoute: "-directive RuntimeOptimized",
	},
	flow.StrategyPower: {
		flow.StageSynth:    "-flatten_hierarchy rebuilt -gated_clock_conversion auto -directive Default",
		flow.StageOpt:      "-directive ExploreSequentialArea",
		flow.StagePlace:    "-directive Default",
		flow.StagePlaceOpt: "-retarget -propconst -sweep -bram_power_opt",
		flow.StagePhysOpt:  "-directive Default",
		flow.StageRoute:    "-directive Default",
	},
	flow.StrategyArea: {
		flow.StageSynth: "-flatten_hierarchy full -directive AreaOptimized_high",
		flow.StageOpt:   "-directive ExploreArea",
		flow.StagePlace: "-directive Explore",
		flow.StagePlaceOpt: "-retarget -propconst -sweep -aggressive_remap -shift_register_opt" +
			" -dsp_register_opt -bram_power_opt -resynth_seq_area -merge_equivalent_drivers",
		flow.StagePhysOpt: "-directive Explore",
		flow.StageRoute:   "-directive Explore",
	},
}

// Backend implements flow.Backend for the Vivado-class toolchain.
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
		// Only the design-global VHDL standard switch is honored; read_vhdl
		// has no per-file standard selection in batch flows.
		PerFileVersion:  false,
		Dialects:        []flow.Dialect{flow.DialectVerilog, flow.DialectSystemVerilog, flow.DialectVHDL},
		ConstraintKinds: []flow.ConstraintKind{flow.ConstraintTiming, flow.ConstraintPhysical},
		ScriptExt:       ".tcl",
	}
}

func (b *Backend) Command(scriptPath string, opts flow.Options) (string, []string) {
	return "vivado", []string{"-nojournal", "-notrace", "-mode", "batch", "-source", scriptPath}
}

// generics renders the design generics as synth_design -generic options.
// Only integer, boolean and numeric-string values survive; Vivado cannot
// take arbitrary strings on the command line. Booleans become 1'b0/1'b1.
// Keys are emitted sorted so rendering stays deterministic.
func generics(kv map[string]any) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v, ok := convertGeneric(kv[k])
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("-generic %s=%s", k, v))
	}
	return strings.Join(parts, " ")
}

func convertGeneric(v any) (string, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return `1\'b1`, true
		}
		return `1\'b0`, true
	case int:
		return fmt.Sprintf("%d", x), true
	case int64:
		return fmt.Sprintf("%d", x), true
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x)), true
		}
		return "", false
	case string:
		s := strings.TrimSpace(x)
		lower := strings.ToLower(s)
		if lower == "true" {
			return `1\'b1`, true
		}
		if lower == "false" {
			return `1\'b0`, true
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return "", false
			}
		}
		if s == "" {
			return "", false
		}
		return s, true
	default:
		return "", false
	}
}

// stageArgs joins the strategy defaults with resource limits and the
// user-supplied pass-through options for one stage.
func stageArgs(strategy flow.Strategy, stage flow.Stage, opts flow.Options) string {
	args := stageOptions[strategy][stage]
	if stage == flow.StageSynth {
		if !opts.AllowBRAM {
			args += " -max_bram 0"
		}
		if !opts.AllowDSP {
			args += " -max_dsp 0"
		}
	}
	if user := opts.StageOptions(stage); user != "" {
		args = strings.TrimSpace(args + " " + user)
	}
	return strings.TrimSpace(args)
}
