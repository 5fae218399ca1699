package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// resultsDocument is the JSON shape dumped into the run directory so CI and
// downstream analysis can consume the run without re-parsing tool reports.
type resultsDocument struct {
	Design    string    `json:"design"`
	Backend   string    `json:"backend"`
	Strategy  Strategy  `json:"strategy"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Verdict   Verdict   `json:"verdict"`
}

// WriteResults dumps the final verdict as results.json in the run directory.
func WriteResults(rc *RunContext, d Design, def FlowDefinition, v Verdict) error {
	doc := resultsDocument{
		Design:    d.Name,
		Backend:   def.BackendID,
		Strategy:  def.Strategy,
		RunID:     rc.RunID,
		Timestamp: time.Now().UTC(),
		Verdict:   v,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(rc.ResultsJSONPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

const (
	resultsNameWidth = 48
	resultsDataWidth = 24
)

// FormatResults renders the verdict as a fixed-width table for terminal
// output, one metric per line.
func FormatResults(designName, backendID string, v Verdict) string {
	var b strings.Builder
	hline := strings.Repeat("-", resultsNameWidth+resultsDataWidth)

	b.WriteString(hline + "\n")
	title := fmt.Sprintf("%s / %s", designName, backendID)
	pad := (resultsNameWidth + resultsDataWidth - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(hline + "\n")

	writeRow := func(name, value string) {
		b.WriteString(fmt.Sprintf("%-*s%*s\n", resultsNameWidth, name, resultsDataWidth, value))
	}

	writeRow("outcome", string(v.Outcome))
	if v.Metrics.TimingSlackNs != nil {
		writeRow("worst setup slack (ns)", fmt.Sprintf("%.3f", *v.Metrics.TimingSlackNs))
	}
	if v.Metrics.HoldSlackNs != nil {
		writeRow("worst hold slack (ns)", fmt.Sprintf("%.3f", *v.Metrics.HoldSlackNs))
	}
	writeRow("critical warnings", fmt.Sprintf("%d", v.Metrics.CriticalWarnings))
	if v.Metrics.PowerMw != nil {
		writeRow("total power (mW)", fmt.Sprintf("%.2f", *v.Metrics.PowerMw))
	}

	resources := make([]string, 0, len(v.Metrics.Utilization))
	for r := range v.Metrics.Utilization {
		resources = append(resources, r)
	}
	sort.Strings(resources)
	for _, r := range resources {
		writeRow(r, fmt.Sprintf("%d", v.Metrics.Utilization[r]))
	}

	if len(v.Diagnostics) > 0 {
		b.WriteString(hline + "\n")
		for _, d := range v.Diagnostics {
			b.WriteString(d + "\n")
		}
	}
	b.WriteString(hline + "\n")
	return b.String()
}
