package quartus

import (
	"fmt"
	"strings"

	"hdlflow/flow"
)

// RenderScript produces the quartus_sh control script. Same section contract
// as every backend: setup, message suppression, part validation, source
// ingestion, constraint ingestion, stage sequence, reports, decision block.
//
// This is a project-based tool: sources and constraints become project
// assignments, and stages are execute_module invocations against the
// project revision.
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
				fmt.Sprintf("dialect %s of %s is not supported by quartus", s.Dialect, s.Path))
		}
	}

	var w strings.Builder

	// Environment / project setup.
	fmt.Fprintf(&w, "# %s | backend %s | strategy %s\n", d.Name, BackendID, def.Strategy)
	w.WriteString("package require ::quartus::project\n")
	w.WriteString("package require ::quartus::flow\n\n")
	fmt.Fprintf(&w, "set design_name {%s}\n", d.Name)
	fmt.Fprintf(&w, "set part {%s}\n", opts.Part)
	w.WriteString("\n")

	// Message suppression: these IDs are dropped from the compilation log.
	for _, id := range suppressedWarningIDs {
		fmt.Fprintf(&w, "set_global_assignment -name MESSAGE_DISABLE %s\n", id)
	}
	w.WriteString("\n")

	// Part validation before the project is created.
	w.WriteString("if {[catch {get_part_info -family $part} err]} {\n")
	fmt.Fprintf(&w, "    puts \"%s unsupported part $part\"\n", flow.FatalMarker)
	w.WriteString("    qexit -error\n")
	w.WriteString("}\n\n")

	fmt.Fprintf(&w, "project_new $design_name -overwrite -part $part\n")
	fmt.Fprintf(&w, "set_global_assignment -name TOP_LEVEL_ENTITY {%s}\n", d.Top)
	fmt.Fprintf(&w, "set_global_assignment -name NUM_PARALLEL_PROCESSORS %d\n", rc.NumThreads)
	if d.VHDLStd == "2008" {
		// Global language-version switch; per-file overrides are not emitted.
		w.WriteString("set_global_assignment -name VHDL_INPUT_VERSION VHDL_2008\n")
	}
	writeStrategyAssignments(&w, def.Strategy)
	w.WriteString("\n")

	// Source ingestion, one assignment per file in design order. The tool
	// reads lazily at analysis time, so each file is existence-checked here
	// to keep the first-file-error-is-fatal contract.
	for _, src := range d.SynthSources() {
		fmt.Fprintf(&w, "if {![file exists {%s}]} {\n", src.Path)
		fmt.Fprintf(&w, "    puts \"%s %s\"\n", flow.FatalMarker, src.Path)
		w.WriteString("    qexit -error\n")
		w.WriteString("}\n")
		fmt.Fprintf(&w, "set_global_assignment -name %s {%s}\n", assignmentName(src.Dialect), src.Path)
	}
	w.WriteString("\n")

	// Constraint ingestion: timing constraints as SDC files, physical
	// (pin/location) constraints as sourced assignment scripts.
	writeClockSDC(&w, d, opts)
	for _, c := range d.Constraints {
		switch c.Kind {
		case flow.ConstraintTiming:
			fmt.Fprintf(&w, "set_global_assignment -name SDC_FILE {%s}\n", c.Path)
		case flow.ConstraintPhysical:
			fmt.Fprintf(&w, "if {[catch {source {%s}} err]} {\n", c.Path)
			fmt.Fprintf(&w, "    puts \"%s %s\"\n", flow.FatalMarker, c.Path)
			w.WriteString("    qexit -error\n")
			w.WriteString("}\n")
		}
	}
	w.WriteString("\n")

	writeStages(&w, def, opts)
	writeReportsAndDecision(&w, opts)

	w.WriteString("project_close\n")
	return w.String(), nil
}

func assignmentName(d flow.Dialect) string {
	switch d {
	case flow.DialectVHDL:
		return "VHDL_FILE"
	case flow.DialectSystemVerilog:
		return "SYSTEMVERILOG_FILE"
	default:
		return "VERILOG_FILE"
	}
}

func writeStrategyAssignments(w *strings.Builder, strategy flow.Strategy) {
	if strategy.OmitsOptimization() {
		w.WriteString("set_global_assignment -name FITTER_EFFORT {FAST FIT}\n")
		if strategy == flow.StrategyDebug {
			// Keep the hierarchy intact and block netlist restructuring so
			// the compiled design still matches the RTL under debug.
			w.WriteString("set_global_assignment -name PRESERVE_HIERARCHICAL_BOUNDARY FIRM\n")
			w.WriteString("set_global_assignment -name SYNTH_TIMING_DRIVEN_SYNTHESIS OFF\n")
		}
		return
	}
	if mode, ok := optimizationMode[strategy]; ok {
		fmt.Fprintf(w, "set_global_assignment -name OPTIMIZATION_MODE {%s}\n", mode)
	}
	if strategy == flow.StrategyPower {
		w.WriteString("set_global_assignment -name POWER_OPTIMIZATION_DURING_FITTING {EXTRA EFFORT}\n")
	}
}

// writeClockSDC materializes the design clock as a generated SDC file so
// the static timing analyzer has a constraint to judge against.
func writeClockSDC(w *strings.Builder, d flow.Design, opts flow.Options) {
	if d.Clock == nil {
		return
	}
	w.WriteString("set sdc [open clock.sdc w]\n")
	fmt.Fprintf(w, "puts $sdc {create_clock -period %.3f -name %s [get_ports {%s}]}\n",
		d.Clock.PeriodNs, d.Clock.Port, d.Clock.Port)
	if opts.InputDelayNs > 0 {
		fmt.Fprintf(w, "puts $sdc {set_input_delay -clock %s %.3f [all_inputs]}\n", d.Clock.Port, opts.InputDelayNs)
	}
	if opts.OutputDelayNs > 0 {
		fmt.Fprintf(w, "puts $sdc {set_output_delay -clock %s %.3f [all_outputs]}\n", d.Clock.Port, opts.OutputDelayNs)
	}
	w.WriteString("close $sdc\n")
	w.WriteString("set_global_assignment -name SDC_FILE clock.sdc\n")
}

// writeStages emits one execute_module per pipeline stage. Synthesis is the
// map tool, place and route are the fitter, timing sign-off is sta. The
// fitter owns routing, so the route stage runs sta rather than re-fitting.
func writeStages(w *strings.Builder, def flow.FlowDefinition, opts flow.Options) {
	runModule := func(tool, userArgs string) {
		if userArgs != "" {
			fmt.Fprintf(w, "if {[catch {execute_module -tool %s -args {%s}} err]} { qexit -error }\n", tool, userArgs)
		} else {
			fmt.Fprintf(w, "if {[catch {execute_module -tool %s} err]} { qexit -error }\n", tool)
		}
	}

	for _, stage := range def.Stages {
		switch stage {
		case flow.StageSynth:
			runModule("map", opts.StageOptions(flow.StageSynth))
			w.WriteString("file copy -force output_files/$design_name.map.summary reports/post_synth/map.summary\n")
		case flow.StagePlace:
			runModule("fit", opts.StageOptions(flow.StagePlace))
			w.WriteString("file copy -force output_files/$design_name.fit.summary reports/post_place/fit.summary\n")
		case flow.StageRoute:
			runModule("sta", opts.StageOptions(flow.StageRoute))
		}
	}
	if def.Strategy == flow.StrategyPower {
		runModule("pow", "")
	}
	if opts.Bitstream {
		runModule("asm", "")
	}
	w.WriteString("\n")
}

// writeReportsAndDecision copies the sign-off summaries into the report
// layout and evaluates the in-tool pass/fail decision from the sta summary.
func writeReportsAndDecision(w *strings.Builder, opts flow.Options) {
	w.WriteString("file copy -force output_files/$design_name.sta.summary reports/post_route/sta.summary\n")
	w.WriteString("file copy -force output_files/$design_name.fit.summary reports/post_route/fit.summary\n")
	w.WriteString("catch {file copy -force output_files/$design_name.pow.summary reports/post_route/pow.summary}\n")
	w.WriteString("catch {file copy -force output_files/$design_name.sof results/}\n")
	w.WriteString("\n")

	// Worst slack across all sta.summary entries.
	w.WriteString("set wns 1e9\n")
	w.WriteString("set fp [open reports/post_route/sta.summary r]\n")
	w.WriteString("while {[gets $fp line] >= 0} {\n")
	w.WriteString("    if {[regexp {Slack\\s*:\\s*(-?[0-9.]+)} $line -> s] && $s < $wns} { set wns $s }\n")
	w.WriteString("}\n")
	w.WriteString("close $fp\n")
	w.WriteString("puts \"POST-ROUTE WNS: $wns ns\"\n")
	if opts.FailOnTiming {
		w.WriteString("if {$wns < 0} {\n")
		w.WriteString("    puts \"ERROR: timing not met: worst negative slack $wns ns\"\n")
		w.WriteString("    qexit -error\n")
		w.WriteString("}\n")
	}
}
