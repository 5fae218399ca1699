package flow

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestWriteResultsRoundTrip(t *testing.T) {
	rc, err := NewRunContext(t.TempDir(), "counter", "vivado", ".tcl", 1)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	defer rc.Release()
	if err := os.MkdirAll(rc.RunDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	def := NewFlowDefinition("vivado", StrategyDefault)
	v := Verdict{
		Outcome:     OutcomeTimingFailure,
		Diagnostics: []string{"timing not met: worst setup slack -0.050 ns"},
		Metrics: Metrics{
			TimingSlackNs:    Float64Ptr(-0.05),
			CriticalWarnings: 1,
			Utilization:      map[string]int{"lut": 120, "ff": 64},
		},
	}
	if err := WriteResults(rc, validDesign(), def, v); err != nil {
		t.Fatalf("WriteResults: %v", err)
	}

	data, err := os.ReadFile(rc.ResultsJSONPath())
	if err != nil {
		t.Fatalf("reading results: %v", err)
	}
	var doc struct {
		Design  string  `json:"design"`
		Backend string  `json:"backend"`
		RunID   string  `json:"run_id"`
		Verdict Verdict `json:"verdict"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshalling results: %v", err)
	}
	if doc.Design != "counter" || doc.Backend != "vivado" || doc.RunID != rc.RunID {
		t.Errorf("document header = %+v", doc)
	}
	if doc.Verdict.Outcome != OutcomeTimingFailure {
		t.Errorf("outcome = %s", doc.Verdict.Outcome)
	}
	if doc.Verdict.Metrics.TimingSlackNs == nil || *doc.Verdict.Metrics.TimingSlackNs != -0.05 {
		t.Errorf("slack did not survive the round trip: %+v", doc.Verdict.Metrics)
	}
}

func TestFormatResults(t *testing.T) {
	v := Verdict{
		Outcome:     OutcomeSuccess,
		Diagnostics: []string{"1 critical warning(s) after suppression"},
		Metrics: Metrics{
			TimingSlackNs:    Float64Ptr(1.234),
			HoldSlackNs:      Float64Ptr(0.1),
			CriticalWarnings: 1,
			PowerMw:          Float64Ptr(250.5),
			Utilization:      map[string]int{"lut": 42, "ff": 17},
		},
	}
	out := FormatResults("counter", "vivado", v)

	for _, want := range []string{
		"counter / vivado",
		"outcome",
		"success",
		"1.234",
		"0.100",
		"250.50",
		"lut",
		"42",
		"critical warning(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted results missing %q:\n%s", want, out)
		}
	}

	// Absent metrics are omitted, not rendered as zero.
	out = FormatResults("counter", "vivado", Verdict{Outcome: OutcomeToolError})
	if strings.Contains(out, "slack") || strings.Contains(out, "power") {
		t.Errorf("absent metrics rendered:\n%s", out)
	}
}
