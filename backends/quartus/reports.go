package quartus

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"hdlflow/flow"
)

// sta.summary carries one block per timing model:
//
//	Type  : Slow 1100mV 85C Model Setup 'clk'
//	Slack : -0.050
//	TNS   : -0.102
var staBlockRe = regexp.MustCompile(`(?m)^Type\s*:\s*(.+)$\n^Slack\s*:\s*(-?\d+(?:\.\d+)?)`)

var fitRows = []struct {
	resource string
	re       *regexp.Regexp
}{
	{"alm", regexp.MustCompile(`Logic utilization \(in ALMs\)\s*:\s*([\d,]+)`)},
	{"le", regexp.MustCompile(`Total logic elements\s*:\s*([\d,]+)`)},
	{"ff", regexp.MustCompile(`Total registers\s*:\s*([\d,]+)`)},
	{"pin", regexp.MustCompile(`Total pins\s*:\s*([\d,]+)`)},
	{"bram_bits", regexp.MustCompile(`Total block memory bits\s*:\s*([\d,]+)`)},
	{"dsp", regexp.MustCompile(`(?:Embedded Multiplier 9-bit elements|Total DSP Blocks)\s*:\s*([\d,]+)`)},
}

var powRe = regexp.MustCompile(`Total Thermal Power Dissipation\s*:\s*(\d+(?:\.\d+)?)\s*mW`)

// criticalWarningRe matches `Critical Warning (332148): text...`.
var criticalWarningRe = regexp.MustCompile(`^Critical Warning \((\d+)\):`)

// ParseReports reads the copied summary artifacts and the captured
// compilation log. Setup slack is the worst slack over all setup-model
// blocks in the sta summary; absent summaries leave metrics absent.
func (b *Backend) ParseReports(rc *flow.RunContext, log *flow.CapturedLog) (flow.Metrics, []string, error) {
	m := flow.Metrics{Extra: map[string]any{}}
	var diags []string

	postRoute := rc.StageReportDir(flow.StageRoute)

	staPath := filepath.Join(postRoute, "sta.summary")
	if data, err := os.ReadFile(staPath); err == nil {
		setup, hold, found := worstSlacks(string(data))
		if found {
			m.TimingSlackNs = flow.Float64Ptr(setup)
			if hold != nil {
				m.HoldSlackNs = hold
			}
			if setup < 0 {
				diags = append(diags, fmt.Sprintf("worst setup slack %.3f ns, see %s", setup, staPath))
			}
		}
	}

	fitPath := filepath.Join(postRoute, "fit.summary")
	if data, err := os.ReadFile(fitPath); err == nil {
		util := parseFitSummary(string(data))
		if len(util) > 0 {
			m.Utilization = util
		}
	}

	powPath := filepath.Join(postRoute, "pow.summary")
	if data, err := os.ReadFile(powPath); err == nil {
		if match := powRe.FindStringSubmatch(string(data)); match != nil {
			mw, _ := strconv.ParseFloat(match[1], 64)
			m.PowerMw = flow.Float64Ptr(mw)
		}
	}

	count, warnDiags := countCriticalWarnings(log.Lines())
	m.CriticalWarnings = count
	diags = append(diags, warnDiags...)

	return m, diags, nil
}

// worstSlacks scans all timing-model blocks, returning the worst setup
// slack and, when present, the worst hold slack.
func worstSlacks(summary string) (setup float64, hold *float64, found bool) {
	for _, match := range staBlockRe.FindAllStringSubmatch(summary, -1) {
		model := match[1]
		slack, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(model, "Setup"):
			if !found || slack < setup {
				setup = slack
			}
			found = true
		case strings.Contains(model, "Hold"):
			if hold == nil || slack < *hold {
				hold = flow.Float64Ptr(slack)
			}
		}
	}
	return setup, hold, found
}

func parseFitSummary(summary string) map[string]int {
	util := map[string]int{}
	for _, row := range fitRows {
		if match := row.re.FindStringSubmatch(summary); match != nil {
			n, err := strconv.Atoi(strings.ReplaceAll(match[1], ",", ""))
			if err == nil {
				util[row.resource] = n
			}
		}
	}
	return util
}

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

func isSuppressed(id string) bool {
	for _, s := range suppressedWarningIDs {
		if s == id {
			return true
		}
	}
	return false
}
