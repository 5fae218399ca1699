package quartus

import (
	"os"
	"path/filepath"
	"testing"

	"hdlflow/flow"
)

const sampleStaSummary = `
------------------------------------------------------------
Timing Analyzer Summary
------------------------------------------------------------

Type  : Slow 1100mV 85C Model Setup 'clk'
Slack : -0.050
TNS   : -0.102

Type  : Slow 1100mV 85C Model Hold 'clk'
Slack : 0.030
TNS   : 0.000

Type  : Fast 1100mV 0C Model Setup 'clk'
Slack : 1.250
TNS   : 0.000

Type  : Fast 1100mV 0C Model Hold 'clk'
Slack : 0.010
TNS   : 0.000
`

const sampleFitSummary = `
Fitter Status : Successful - Sat Aug 22 12:00:00 2026
Total logic elements : 1,234 / 22,320 ( 6 % )
Total registers : 567
Total pins : 23 / 154 ( 15 % )
Total block memory bits : 16,384 / 608,256 ( 3 % )
Embedded Multiplier 9-bit elements : 4 / 132 ( 3 % )
`

const samplePowSummary = `
Power Analyzer Status : Successful
Total Thermal Power Dissipation : 123.45 mW
Core Dynamic Thermal Power Dissipation : 10.00 mW
`

func reportContext(t *testing.T) *flow.RunContext {
	t.Helper()
	rc, err := flow.NewRunContext(t.TempDir(), "counter", BackendID, ".tcl", 1)
	if err != nil {
		t.Fatalf("NewRunContext: %v", err)
	}
	t.Cleanup(rc.Release)
	if err := os.MkdirAll(rc.StageReportDir(flow.StageRoute), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return rc
}

func writeSummary(t *testing.T, rc *flow.RunContext, name, content string) {
	t.Helper()
	path := filepath.Join(rc.StageReportDir(flow.StageRoute), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestParseReports(t *testing.T) {
	rc := reportContext(t)
	writeSummary(t, rc, "sta.summary", sampleStaSummary)
	writeSummary(t, rc, "fit.summary", sampleFitSummary)
	writeSummary(t, rc, "pow.summary", samplePowSummary)

	log := flow.NewCapturedLog()
	log.Append("Critical Warning (332148): Timing requirements not met")
	log.Append("Critical Warning (306004): Ignored power pin (suppressed)")
	log.Append("Warning (12241): ordinary warning, not critical")

	m, diags, err := New().ParseReports(rc, log)
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}

	// Worst setup slack over all setup models; worst hold likewise.
	if m.TimingSlackNs == nil || *m.TimingSlackNs != -0.05 {
		t.Errorf("setup slack = %v, want -0.05", m.TimingSlackNs)
	}
	if m.HoldSlackNs == nil || *m.HoldSlackNs != 0.01 {
		t.Errorf("hold slack = %v, want 0.01", m.HoldSlackNs)
	}

	want := map[string]int{"le": 1234, "ff": 567, "pin": 23, "bram_bits": 16384, "dsp": 4}
	for k, v := range want {
		if m.Utilization[k] != v {
			t.Errorf("util[%s] = %d, want %d", k, m.Utilization[k], v)
		}
	}

	if m.PowerMw == nil || *m.PowerMw != 123.45 {
		t.Errorf("power = %v, want 123.45", m.PowerMw)
	}

	if m.CriticalWarnings != 1 {
		t.Errorf("critical warnings = %d, want 1", m.CriticalWarnings)
	}
	if len(diags) == 0 {
		t.Error("negative slack produced no diagnostics")
	}
}

func TestParseReportsMissingSummaries(t *testing.T) {
	rc := reportContext(t)
	m, _, err := New().ParseReports(rc, flow.NewCapturedLog())
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}
	if m.TimingSlackNs != nil || m.HoldSlackNs != nil || m.PowerMw != nil {
		t.Errorf("absent summaries produced metrics: %+v", m)
	}
}

func TestWorstSlacksIgnoresUnrelatedBlocks(t *testing.T) {
	setup, hold, found := worstSlacks("Type : Minimum Pulse Width 'clk'\nSlack : -5.000\n")
	if found {
		t.Errorf("pulse-width block treated as setup: %v %v", setup, hold)
	}
}
