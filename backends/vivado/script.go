package vivado

import (
	"fmt"
	"strings"

	"hdlflow/flow"
)

// RenderScript produces the Tcl control script for one run. Pure function:
// byte-identical output for identical inputs. Section order is part of the
// external contract: setup, message suppression, part validation, source
// ingestion, constraint ingestion, stage sequence, report emission, and the
// final pass/fail decision block.
func (b *Backend) RenderScript(def flow.FlowDefinition, d flow.Design, opts flow.Options, rc *flow.RunContext) (string, error) {
	if len(d.SynthSources()) == 0 {
		return "", flow.NewConfigurationError(flow.CodeEmptySources,
			fmt.Sprintf("design %q has no synthesizable sources", d.Name))
	}
	if !flow.SupportsPart(b, opts.Part) {
		return "", flow.NewConfigurationError(flow.CodeUnsupportedPart,
			fmt.Sprintf("part %q is not supported (supported: %v)", opts.Part, supportedParts))
	}
	caps := b.Capabilities()
	for _, s := range d.SynthSources() {
		if !caps.SupportsDialect(s.Dialect) {
			return "", flow.NewConfigurationError(flow.CodeUnsupportedDialect,
				fmt.Sprintf("dialect %s of %s is not supported by vivado", s.Dialect, s.Path))
		}
	}

	var w strings.Builder

	// Environment / parameter setup.
	fmt.Fprintf(&w, "# %s | backend %s | strategy %s\n", d.Name, BackendID, def.Strategy)
	fmt.Fprintf(&w, "set design_name {%s}\n", d.Name)
	fmt.Fprintf(&w, "set top {%s}\n", d.Top)
	fmt.Fprintf(&w, "set part {%s}\n", opts.Part)
	fmt.Fprintf(&w, "set_param general.maxThreads %d\n", rc.NumThreads)
	w.WriteString("\n")

	// Message suppression.
	for _, id := range suppressedMsgIDs {
		fmt.Fprintf(&w, "set_msg_config -id {%s} -suppress\n", id)
	}
	w.WriteString("\n")

	// Device/part validation inside the tool, mirroring the pre-flight check.
	w.WriteString("if {[lsearch -exact [get_parts] $part] < 0} {\n")
	fmt.Fprintf(&w, "    puts \"%s unsupported part $part\"\n", flow.FatalMarker)
	w.WriteString("    exit 2\n")
	w.WriteString("}\n\n")

	// Source ingestion, one guarded statement per file in design order.
	// The first read failure aborts the whole run; continuing with a partial
	// design would produce a misleadingly successful-looking netlist.
	for _, src := range d.SynthSources() {
		writeGuardedRead(&w, readCommand(src, d.VHDLStd), src.Path)
	}
	w.WriteString("\n")

	// Constraint ingestion. Unmanaged constraints need an open design, so
	// the files are declared here and applied right after synthesis.
	w.WriteString("set constraint_files [list]\n")
	for _, c := range d.Constraints {
		if caps.SupportsConstraint(c.Kind) {
			fmt.Fprintf(&w, "lappend constraint_files {%s}\n", c.Path)
		}
	}
	w.WriteString("\n")

	writeStages(&w, def, d, opts)
	writeFinalReports(&w)
	writeOutputsAndDecision(&w, d, opts)

	return w.String(), nil
}

// readCommand maps a source file to its ingestion command. Only the global
// VHDL standard switch is emitted; per-file version overrides are not
// honored by this backend (Capabilities.PerFileVersion).
func readCommand(src flow.SourceFile, vhdlStd string) string {
	switch src.Dialect {
	case flow.DialectVHDL:
		if vhdlStd == "2008" {
			return fmt.Sprintf("read_vhdl -vhdl2008 {%s}", src.Path)
		}
		return fmt.Sprintf("read_vhdl {%s}", src.Path)
	case flow.DialectSystemVerilog:
		return fmt.Sprintf("read_verilog -sv {%s}", src.Path)
	default:
		return fmt.Sprintf("read_verilog {%s}", src.Path)
	}
}

func writeGuardedRead(w *strings.Builder, command, path string) {
	fmt.Fprintf(w, "if {[catch {%s} err]} {\n", command)
	fmt.Fprintf(w, "    puts \"%s %s\"\n", flow.FatalMarker, path)
	w.WriteString("    exit 2\n")
	w.WriteString("}\n")
}

func writeStages(w *strings.Builder, def flow.FlowDefinition, d flow.Design, opts flow.Options) {
	for _, stage := range def.Stages {
		switch stage {
		case flow.StageReadSources, flow.StageReport:
			// read_sources is emitted above; report is the final section.
			continue
		case flow.StageSynth:
			args := stageArgs(def.Strategy, flow.StageSynth, opts)
			gen := generics(d.Generics)
			cmd := fmt.Sprintf("synth_design -top $top -part $part %s", args)
			if gen != "" {
				cmd += " " + gen
			}
			fmt.Fprintf(w, "%s\n", strings.TrimSpace(cmd))
			if def.Strategy == flow.StrategyDebug {
				// Debug builds must keep the hierarchy intact and stay
				// optimizer-proof, or the netlist no longer matches the RTL
				// the user is probing.
				w.WriteString("foreach cell [get_cells -hierarchical] {\n")
				w.WriteString("    set_property DONT_TOUCH true $cell\n")
				w.WriteString("}\n")
			}
			writeClockConstraints(w, d, opts)
			w.WriteString("foreach xdc $constraint_files {\n")
			fmt.Fprintf(w, "    if {[catch {read_xdc $xdc} err]} {\n")
			fmt.Fprintf(w, "        puts \"%s $xdc\"\n", flow.FatalMarker)
			w.WriteString("        exit 2\n")
			w.WriteString("    }\n")
			w.WriteString("}\n")
			w.WriteString("write_checkpoint -force checkpoints/post_synth.dcp\n")
			w.WriteString("report_timing_summary -file reports/post_synth/timing_summary.rpt\n")
			w.WriteString("report_utilization -file reports/post_synth/utilization.rpt\n")
		case flow.StageOpt:
			fmt.Fprintf(w, "opt_design %s\n", stageArgs(def.Strategy, flow.StageOpt, opts))
		case flow.StagePlace:
			fmt.Fprintf(w, "place_design %s\n", stageArgs(def.Strategy, flow.StagePlace, opts))
			w.WriteString("write_checkpoint -force checkpoints/post_place.dcp\n")
			w.WriteString("report_timing_summary -file reports/post_place/timing_summary.rpt\n")
			w.WriteString("report_utilization -file reports/post_place/utilization.rpt\n")
		case flow.StagePlaceOpt:
			args := stageArgs(def.Strategy, flow.StagePlaceOpt, opts)
			if args != "" {
				fmt.Fprintf(w, "opt_design %s\n", args)
			}
		case flow.StagePhysOpt:
			fmt.Fprintf(w, "phys_opt_design %s\n", stageArgs(def.Strategy, flow.StagePhysOpt, opts))
		case flow.StagePowerOpt:
			w.WriteString("power_opt_design\n")
		case flow.StageRoute:
			fmt.Fprintf(w, "route_design %s\n", stageArgs(def.Strategy, flow.StageRoute, opts))
			w.WriteString("write_checkpoint -force checkpoints/post_route.dcp\n")
		}
		w.WriteString("\n")
	}
}

func writeClockConstraints(w *strings.Builder, d flow.Design, opts flow.Options) {
	if d.Clock == nil {
		return
	}
	fmt.Fprintf(w, "create_clock -period %.3f -name %s [get_ports {%s}]\n",
		d.Clock.PeriodNs, d.Clock.Port, d.Clock.Port)
	if opts.InputDelayNs > 0 {
		fmt.Fprintf(w, "set_input_delay -clock %s %.3f [all_inputs]\n", d.Clock.Port, opts.InputDelayNs)
	}
	if opts.OutputDelayNs > 0 {
		fmt.Fprintf(w, "set_output_delay -clock %s %.3f [all_outputs]\n", d.Clock.Port, opts.OutputDelayNs)
	}
}

func writeFinalReports(w *strings.Builder) {
	w.WriteString("report_timing_summary -file reports/post_route/timing_summary.rpt\n")
	w.WriteString("report_utilization -file reports/post_route/utilization.rpt\n")
	w.WriteString("report_power -file reports/post_route/power.rpt\n")
	w.WriteString("report_methodology -file reports/post_route/methodology.rpt\n")
	w.WriteString("report_timing -sort_by group -max_paths 4 -file reports/post_route/critical_path.rpt\n")
	w.WriteString("\n")
}

// writeOutputsAndDecision emits the sign-off artifacts and the in-tool
// pass/fail decision. Artifacts are written before the decision so a
// knowingly-failing timing build still produces deliverables.
func writeOutputsAndDecision(w *strings.Builder, d flow.Design, opts flow.Options) {
	fmt.Fprintf(w, "write_verilog -force -mode timesim -sdf_anno true results/%s_timesim.v\n", d.Top)
	fmt.Fprintf(w, "write_sdf -force results/%s_timesim.sdf\n", d.Top)
	if opts.Bitstream {
		fmt.Fprintf(w, "write_bitstream -force results/%s.bit\n", d.Top)
	}
	w.WriteString("\n")

	w.WriteString("set wns [get_property SLACK [get_timing_paths -max_paths 1 -nworst 1 -setup]]\n")
	w.WriteString("puts \"POST-ROUTE WNS: $wns ns\"\n")
	if opts.FailOnTiming {
		w.WriteString("if {$wns < 0} {\n")
		w.WriteString("    puts \"ERROR: timing not met: worst negative slack $wns ns\"\n")
		w.WriteString("    exit 1\n")
		w.WriteString("}\n")
	}
	w.WriteString("exit 0\n")
}
