package vivado

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"hdlflow/flow"
)

// timingSummaryRe matches the numbers row under the Design Timing Summary
// header: WNS TNS failing-EP total-EP WHS. The row only exists once routing
// has produced a timing-annotated design.
var timingSummaryRe = regexp.MustCompile(
	`(?s)Design\s+Timing\s+Summary.*?WNS\(ns\)\s+TNS\(ns\).*?\n\s*(?:-+\s*)+\n\s*` +
		`(-?\d+(?:\.\d+)?)\s+(-?\d+(?:\.\d+)?)\s+(\d+)\s+(\d+)\s+(-?\d+(?:\.\d+)?)`)

// utilizationRows maps resource names to their row labels in the
// utilization report table.
var utilizationRows = []struct {
	resource string
	label    string
}{
	{"lut", `Slice LUTs`},
	{"ff", `Register as Flip Flop`},
	{"latch", `Register as Latch`},
	{"bram", `Block RAM Tile`},
	{"dsp", `DSPs`},
}

var powerRe = regexp.MustCompile(`\|\s*Total On-Chip Power \(W\)\s*\|\s*(\d+(?:\.\d+)?)\s*\|`)

// criticalWarningRe extracts the message ID of a critical warning line,
// e.g. `CRITICAL WARNING: [Timing 38-282] text...`.
var criticalWarningRe = regexp.MustCompile(`^CRITICAL WARNING:\s*\[([^\]]+)\]`)

// ParseReports reads the post-route report artifacts plus the captured
// output stream. A missing report means the producing stage never ran:
// the metric stays absent, never zero.
func (b *Backend) ParseReports(rc *flow.RunContext, log *flow.CapturedLog) (flow.Metrics, []string, error) {
	m := flow.Metrics{Extra: map[string]any{}}
	var diags []string

	postRoute := rc.StageReportDir(flow.StageRoute)

	timingPath := filepath.Join(postRoute, "timing_summary.rpt")
	if data, err := os.ReadFile(timingPath); err == nil {
		if match := timingSummaryRe.FindStringSubmatch(string(data)); match != nil {
			wns, _ := strconv.ParseFloat(match[1], 64)
			tns, _ := strconv.ParseFloat(match[2], 64)
			failing, _ := strconv.Atoi(match[3])
			whs, _ := strconv.ParseFloat(match[5], 64)
			m.TimingSlackNs = flow.Float64Ptr(wns)
			m.HoldSlackNs = flow.Float64Ptr(whs)
			m.Extra["tns"] = tns
			m.Extra["failing_endpoints"] = failing
			if wns < 0 {
				diags = append(diags, fmt.Sprintf("worst setup slack %.3f ns, see %s", wns, timingPath))
			}
		} else {
			diags = append(diags, fmt.Sprintf("timing summary %s has no Design Timing Summary table", timingPath))
		}
	}

	utilPath := filepath.Join(postRoute, "utilization.rpt")
	if data, err := os.ReadFile(utilPath); err == nil {
		util := parseUtilization(string(data))
		if len(util) > 0 {
			m.Utilization = util
		}
	}

	powerPath := filepath.Join(postRoute, "power.rpt")
	if data, err := os.ReadFile(powerPath); err == nil {
		if match := powerRe.FindStringSubmatch(string(data)); match != nil {
			watts, _ := strconv.ParseFloat(match[1], 64)
			m.PowerMw = flow.Float64Ptr(watts * 1000)
		}
	}

	count, warnDiags := countCriticalWarnings(log.Lines())
	m.CriticalWarnings = count
	diags = append(diags, warnDiags...)

	return m, diags, nil
}

// parseUtilization pulls the resource counts out of the report's table rows,
// e.g. `| Slice LUTs | 123 | 0 | 20800 | 0.59 |`.
func parseUtilization(report string) map[string]int {
	util := map[string]int{}
	for _, row := range utilizationRows {
		re := regexp.MustCompile(`\|\s*` + row.label + `\s*\|\s*(\d+)\s*\|`)
		if match := re.FindStringSubmatch(report); match != nil {
			n, err := strconv.Atoi(match[1])
			if err == nil {
				util[row.resource] = n
			}
		}
	}
	return util
}

// countCriticalWarnings counts critical-severity messages in the captured
// stream, excluding the fixed known-benign suppression list. The first few
// surviving messages are surfaced as diagnostics.
func countCriticalWarnings(lines []string) (int, []string) {
	const maxSurfaced = 5
	count := 0
	var diags []string
	for _, line := range lines {
		match := criticalWarningRe.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			continue
		}
		if isSuppressed(match[1]) {
			continue
		}
		count++
		if len(diags) < maxSurfaced {
			diags = append(diags, strings.TrimSpace(line))
		}
	}
	return count, diags
}

func isSuppressed(msgID string) bool {
	for _, id := range suppressedMsgIDs {
		if strings.EqualFold(id, msgID) {
			return true
		}
	}
	return false
}
