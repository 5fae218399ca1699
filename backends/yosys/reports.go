package yosys

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"

	"hdlflow/flow"
)

// cellClasses maps netlist cell-type prefixes to the resource names used in
// the utilization map, covering both ice40 and ecp5 primitive libraries.
var cellClasses = []struct {
	resource string
	prefixes []string
}{
	{"lut", []string{"SB_LUT", "LUT"}},
	{"ff", []string{"SB_DFF", "TRELLIS_FF", "DFF"}},
	{"bram", []string{"SB_RAM", "DP16KD", "PDPW16KD"}},
	{"dsp", []string{"SB_MAC", "MULT18X18D", "ALU54"}},
	{"carry", []string{"SB_CARRY", "CCU2C"}},
}

// fmaxLogRe matches nextpnr's timing summary line, printed whether or not
// the constraint is met:
//
//	Info: Max frequency for clock 'clk': 95.05 MHz (FAIL at 100.00 MHz)
var fmaxLogRe = regexp.MustCompile(
	`Max frequency for clock\s+'([^']+)':\s+(-?\d+(?:\.\d+)?)\s+MHz\s+\((?:PASS|FAIL) at (\d+(?:\.\d+)?) MHz\)`)

var warningRe = regexp.MustCompile(`^Warning:`)

// ParseReports reads the yosys stat dump and the nextpnr report, both JSON.
// Slack is derived from achieved versus constrained frequency; a missing
// report leaves the metric absent, never zero.
func (b *Backend) ParseReports(rc *flow.RunContext, log *flow.CapturedLog) (flow.Metrics, []string, error) {
	m := flow.Metrics{Extra: map[string]any{}}
	var diags []string

	statPath := filepath.Join(rc.StageReportDir(flow.StageSynth), "stat.json")
	if data, err := os.ReadFile(statPath); err == nil {
		util, parseErr := parseStat(data)
		if parseErr != nil {
			return m, diags, fmt.Errorf("parsing %s: %w", statPath, parseErr)
		}
		if len(util) > 0 {
			m.Utilization = util
		}
	}

	reportPath := filepath.Join(rc.StageReportDir(flow.StageRoute), "report.json")
	if data, err := os.ReadFile(reportPath); err == nil {
		slack, fmax, parseErr := parseTimingReport(data)
		if parseErr != nil {
			return m, diags, fmt.Errorf("parsing %s: %w", reportPath, parseErr)
		}
		if slack != nil {
			m.TimingSlackNs = slack
			m.Extra["fmax_mhz"] = fmax
			if *slack < 0 {
				diags = append(diags, fmt.Sprintf("worst setup slack %.3f ns, see %s", *slack, reportPath))
			}
		}
	}
	if m.TimingSlackNs == nil {
		// nextpnr aborts before writing the report when timing fails; the
		// summary line in the captured log still carries the numbers.
		if slack, fmax, ok := timingFromLog(log.Lines()); ok {
			m.TimingSlackNs = flow.Float64Ptr(slack)
			m.Extra["fmax_mhz"] = fmax
			if slack < 0 {
				diags = append(diags, fmt.Sprintf("worst setup slack %.3f ns (from tool log)", slack))
			}
		}
	}

	count, warnDiags := countWarnings(log.Lines())
	m.CriticalWarnings = count
	diags = append(diags, warnDiags...)

	return m, diags, nil
}

// parseStat aggregates the per-type cell counts of a `stat -json` dump into
// resource classes. Unclassified cells only contribute to the total.
func parseStat(data []byte) (map[string]int, error) {
	doc, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	util := map[string]int{}
	for cellType, child := range doc.Path("design.num_cells_by_type").ChildrenMap() {
		count, ok := child.Data().(float64)
		if !ok {
			continue
		}
		if class := classifyCell(cellType); class != "" {
			util[class] += int(count)
		}
	}
	if total, ok := doc.Path("design.num_cells").Data().(float64); ok {
		util["cells"] = int(total)
	}
	return util, nil
}

func classifyCell(cellType string) string {
	for _, class := range cellClasses {
		for _, prefix := range class.prefixes {
			if strings.HasPrefix(cellType, prefix) {
				return class.resource
			}
		}
	}
	return ""
}

// parseTimingReport derives the worst setup slack from nextpnr's report:
// each constrained clock carries achieved and required fmax in MHz, and
// slack is the period difference.
func parseTimingReport(data []byte) (*float64, float64, error) {
	doc, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, 0, err
	}
	var worst *float64
	var worstFmax float64
	for _, clock := range doc.Path("fmax").ChildrenMap() {
		achieved, okA := clock.Path("achieved").Data().(float64)
		constraint, okC := clock.Path("constraint").Data().(float64)
		if !okA || !okC || achieved <= 0 || constraint <= 0 {
			continue
		}
		slack := 1000.0/constraint - 1000.0/achieved
		if worst == nil || slack < *worst {
			worst = flow.Float64Ptr(slack)
			worstFmax = achieved
		}
	}
	return worst, worstFmax, nil
}

func timingFromLog(lines []string) (slack, fmax float64, found bool) {
	for _, line := range lines {
		match := fmaxLogRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		achieved, errA := strconv.ParseFloat(match[2], 64)
		constraint, errC := strconv.ParseFloat(match[3], 64)
		if errA != nil || errC != nil || achieved <= 0 || constraint <= 0 {
			continue
		}
		s := 1000.0/constraint - 1000.0/achieved
		if !found || s < slack {
			slack = s
			fmax = achieved
			found = true
		}
	}
	return slack, fmax, found
}

// countWarnings counts warning lines from both tools, excluding the fixed
// known-benign prefixes. Neither tool has numeric message IDs, so the
// suppression match is on the message prefix.
func countWarnings(lines []string) (int, []string) {
	const maxSurfaced = 5
	count := 0
	var diags []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !warningRe.MatchString(trimmed) {
			continue
		}
		if isSuppressed(trimmed) {
			continue
		}
		count++
		if len(diags) < maxSurfaced {
			diags = append(diags, trimmed)
		}
	}
	return count, diags
}

func isSuppressed(line string) bool {
	for _, prefix := range suppressedWarnings {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
