package yosys

import (
	"fmt"
	"sort"
	"strings"

	"hdlflow/flow"
)

// synthOptions maps a strategy to extra flags on the synth_<family> pass.
// Debug keeps the hierarchy so the netlist still resembles the RTL.
var synthOptions = map[flow.Strategy]string{
	flow.StrategyDebug: "-noflatten",
}

// pnrOptions maps a strategy to extra nextpnr flags. The fast strategies
// drop timing-driven placement.
var pnrOptions = map[flow.Strategy]string{
	flow.StrategyDebug:   "--no-tmdriv",
	flow.StrategyRuntime: "--no-tmdriv --placer heap",
}

// RenderScript produces a shell control script that writes a yosys synthesis
// script, runs it, then runs nextpnr. Same section contract as every backend:
// setup, part validation, guarded source ingestion, constraint ingestion,
// stage sequence, reports, decision block. The decision block is nextpnr's
// own timing check: without --timing-allow-fail it exits nonzero when the
// clock constraint is missed.
func (b *Backend) RenderScript(def flow.FlowDefinition, d flow.Design, opts flow.Options, rc *flow.RunContext) (string, error) {
	if len(d.SynthSources()) == 0 {
		return "", flow.NewConfigurationError(flow.CodeEmptySources,
			fmt.Sprintf("design %q has no synthesizable sources", d.Name))
	}
	info, err := lookupPart(opts.Part)
	if err != nil {
		return "", err
	}
	caps := b.Capabilities()
	for _, s := range d.SynthSources() {
		if !caps.SupportsDialect(s.Dialect) {
			return "", flow.NewConfigurationError(flow.CodeUnsupportedDialect,
				fmt.Sprintf("dialect %s of %s is not supported by yosys", s.Dialect, s.Path))
		}
	}

	var w strings.Builder

	fmt.Fprintf(&w, "#!/bin/sh\n# %s | backend %s | strategy %s\nset -u\n\n", d.Name, BackendID, def.Strategy)

	// Source ingestion guards. yosys would error on a missing file too, but
	// checking up front keeps the first missing file the fatal one, with its
	// path on the marker line.
	for _, src := range d.SynthSources() {
		fmt.Fprintf(&w, "if [ ! -r \"%s\" ]; then\n", src.Path)
		fmt.Fprintf(&w, "    echo \"%s %s\"\n", flow.FatalMarker, src.Path)
		w.WriteString("    exit 2\n")
		w.WriteString("fi\n")
	}
	for _, c := range d.ConstraintsOfKind(flow.ConstraintPhysical) {
		fmt.Fprintf(&w, "if [ ! -r \"%s\" ]; then\n", c.Path)
		fmt.Fprintf(&w, "    echo \"%s %s\"\n", flow.FatalMarker, c.Path)
		w.WriteString("    exit 2\n")
		w.WriteString("fi\n")
	}
	w.WriteString("\n")

	writeSynthScript(&w, def, d, info, opts)

	fmt.Fprintf(&w, "yosys -l reports/post_synth/yosys.log synth.ys || exit $?\n\n")

	writePnr(&w, def, d, info, opts, rc)
	writeBitstream(&w, d, info, opts)

	w.WriteString("exit 0\n")
	return w.String(), nil
}

// writeSynthScript emits a heredoc producing the yosys script: reads,
// generic overrides, synthesis, post-synth reports and checkpoint.
func writeSynthScript(w *strings.Builder, def flow.FlowDefinition, d flow.Design, info partInfo, opts flow.Options) {
	w.WriteString("cat > synth.ys <<'EOF'\n")
	for _, src := range d.SynthSources() {
		switch src.Dialect {
		case flow.DialectNetlistJSON:
			fmt.Fprintf(w, "read_json %s\n", src.Path)
		default:
			fmt.Fprintf(w, "read_verilog %s\n", src.Path)
		}
	}
	for _, line := range genericLines(d) {
		w.WriteString(line + "\n")
	}
	if def.Strategy == flow.StrategyDebug {
		fmt.Fprintf(w, "setattr -set keep_hierarchy 1\n")
	}

	synth := fmt.Sprintf("synth_%s -top %s", info.arch, d.Top)
	if extra := synthOptions[def.Strategy]; extra != "" {
		synth += " " + extra
	}
	if user := opts.StageOptions(flow.StageSynth); user != "" {
		synth += " " + user
	}
	w.WriteString(synth + "\n")

	if def.HasStage(flow.StageOpt) {
		w.WriteString("opt -full\n")
	}
	if def.HasStage(flow.StagePowerOpt) {
		w.WriteString("opt_clean -purge\n")
	}

	w.WriteString("tee -q -o reports/post_synth/stat.json stat -json\n")
	w.WriteString("write_json checkpoints/post_synth.json\n")
	w.WriteString("EOF\n\n")
}

// genericLines converts top-level generic overrides into chparam commands,
// sorted by name so the script is deterministic.
func genericLines(d flow.Design) []string {
	if len(d.Generics) == 0 {
		return nil
	}
	names := make([]string, 0, len(d.Generics))
	for name := range d.Generics {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("chparam -set %s %s %s", name, convertGeneric(d.Generics[name]), d.Top))
	}
	return lines
}

func convertGeneric(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// writePnr emits the nextpnr invocation covering the place, place_opt,
// phys_opt and route stages; nextpnr owns all of them in one process.
func writePnr(w *strings.Builder, def flow.FlowDefinition, d flow.Design, info partInfo, opts flow.Options, rc *flow.RunContext) {
	args := []string{
		info.deviceFlag,
		"--package " + info.pkg,
		"--json checkpoints/post_synth.json",
		fmt.Sprintf("--threads %d", rc.NumThreads),
	}

	for _, c := range d.ConstraintsOfKind(flow.ConstraintPhysical) {
		if info.arch == "ice40" {
			args = append(args, "--pcf "+c.Path)
		} else {
			args = append(args, "--lpf "+c.Path)
		}
	}

	if d.Clock != nil {
		freq := 1000.0 / d.Clock.PeriodNs
		if info.arch == "ice40" {
			args = append(args, fmt.Sprintf("--freq %.3f", freq))
		} else {
			// ecp5 takes the clock constraint through an LPF statement.
			fmt.Fprintf(w, "printf 'FREQUENCY PORT \"%s\" %.3f MHZ;\\n' > clock.lpf\n", d.Clock.Port, freq)
			args = append(args, "--lpf clock.lpf")
		}
	}

	if extra := pnrOptions[def.Strategy]; extra != "" {
		args = append(args, extra)
	}
	if def.HasStage(flow.StagePhysOpt) {
		args = append(args, "--opt-timing")
	}
	if user := opts.StageOptions(flow.StagePlace); user != "" {
		args = append(args, user)
	}
	if user := opts.StageOptions(flow.StageRoute); user != "" {
		args = append(args, user)
	}
	if !opts.FailOnTiming {
		args = append(args, "--timing-allow-fail")
	}

	if info.arch == "ice40" {
		args = append(args, fmt.Sprintf("--asc results/%s.asc", d.Name))
	} else {
		args = append(args, fmt.Sprintf("--textcfg results/%s.config", d.Name))
	}
	args = append(args,
		"--report reports/post_route/report.json",
		"--log reports/post_route/nextpnr.log",
	)

	fmt.Fprintf(w, "%s \\\n    %s || exit $?\n\n", info.pnrBinary, strings.Join(args, " \\\n    "))
}

func writeBitstream(w *strings.Builder, d flow.Design, info partInfo, opts flow.Options) {
	if !opts.Bitstream {
		return
	}
	if info.arch == "ice40" {
		fmt.Fprintf(w, "icepack results/%s.asc results/%s.bin || exit $?\n\n", d.Name, d.Name)
	} else {
		fmt.Fprintf(w, "ecppack results/%s.config results/%s.bit || exit $?\n\n", d.Name, d.Name)
	}
}
