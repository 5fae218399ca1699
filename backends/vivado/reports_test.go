package vivado

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hdlflow/flow"
)

const sampleTimingSummary = `
------------------------------------------------------------------------------------------------
| Design Timing Summary
| ---------------------
------------------------------------------------------------------------------------------------

    WNS(ns)  TNS(ns)  TNS Failing Endpoints  TNS Total Endpoints  WHS(ns)  THS(ns)
    -------  -------  ---------------------  -------------------  -------  -------
     -0.050   -0.102                      3                 1864    0.020    0.000
`

const sampleUtilization = `
+-------------------------+------+-------+-----------+-------+
|        Site Type        | Used | Fixed | Available | Util% |
+-------------------------+------+-------+-----------+-------+
| Slice LUTs              |  123 |     0 |     20800 |  0.59 |
|   LUT as Logic          |  120 |     0 |     20800 |  0.58 |
| Register as Flip Flop   |   64 |     0 |     41600 |  0.15 |
| Register as Latch       |    0 |     0 |     41600 |  0.00 |
| Block RAM Tile          |    2 |     0 |        50 |  4.00 |
| DSPs                    |    1 |     0 |        90 |  1.11 |
+-------------------------+------+-------+-----------+-------+
`

const samplePower = `
+--------------------------+--------------+
| Total On-Chip Power (W)  | 0.253        |
| Device Static (W)        | 0.072        |
+--------------------------+--------------+
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

func writeReport(t *testing.T, rc *flow.RunContext, name, content string) {
	t.Helper()
	path := filepath.Join(rc.StageReportDir(flow.StageRoute), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestParseReports(t *testing.T) {
	rc := reportContext(t)
	writeReport(t, rc, "timing_summary.rpt", sampleTimingSummary)
	writeReport(t, rc, "utilization.rpt", sampleUtilization)
	writeReport(t, rc, "power.rpt", samplePower)

	log := flow.NewCapturedLog()
	log.Append("CRITICAL WARNING: [Timing 38-282] something real")
	log.Append("CRITICAL WARNING: [Synth 8-3331] unconnected port (suppressed)")
	log.Append("INFO: [Common 17-206] done")

	m, diags, err := New().ParseReports(rc, log)
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}

	if m.TimingSlackNs == nil || *m.TimingSlackNs != -0.05 {
		t.Errorf("wns = %v, want -0.05", m.TimingSlackNs)
	}
	if m.HoldSlackNs == nil || *m.HoldSlackNs != 0.02 {
		t.Errorf("whs = %v, want 0.02", m.HoldSlackNs)
	}
	if m.Extra["failing_endpoints"] != 3 {
		t.Errorf("failing endpoints = %v", m.Extra["failing_endpoints"])
	}

	want := map[string]int{"lut": 123, "ff": 64, "latch": 0, "bram": 2, "dsp": 1}
	for k, v := range want {
		if m.Utilization[k] != v {
			t.Errorf("util[%s] = %d, want %d", k, m.Utilization[k], v)
		}
	}

	if m.PowerMw == nil || *m.PowerMw < 252.9 || *m.PowerMw > 253.1 {
		t.Errorf("power = %v, want ~253.0", m.PowerMw)
	}

	// One real critical warning; the suppressed ID does not count.
	if m.CriticalWarnings != 1 {
		t.Errorf("critical warnings = %d, want 1", m.CriticalWarnings)
	}

	found := false
	for _, d := range diags {
		if strings.Contains(d, "worst setup slack -0.050") {
			found = true
		}
	}
	if !found {
		t.Errorf("negative slack not surfaced in diagnostics: %v", diags)
	}
}

func TestParseReportsMissingFilesLeaveMetricsAbsent(t *testing.T) {
	rc := reportContext(t)
	// No report files at all: the run died before routing.
	m, _, err := New().ParseReports(rc, flow.NewCapturedLog())
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}
	if m.TimingSlackNs != nil {
		t.Errorf("slack = %v, want nil", m.TimingSlackNs)
	}
	if m.PowerMw != nil {
		t.Errorf("power = %v, want nil", m.PowerMw)
	}
	if len(m.Utilization) != 0 {
		t.Errorf("utilization = %v, want empty", m.Utilization)
	}
}

func TestParseReportsZeroSlack(t *testing.T) {
	rc := reportContext(t)
	summary := strings.Replace(sampleTimingSummary, "-0.050", " 0.000", 1)
	writeReport(t, rc, "timing_summary.rpt", summary)

	m, _, err := New().ParseReports(rc, flow.NewCapturedLog())
	if err != nil {
		t.Fatalf("ParseReports: %v", err)
	}
	// Just-met timing parses as present zero, distinct from absent.
	if m.TimingSlackNs == nil || *m.TimingSlackNs != 0.0 {
		t.Errorf("slack = %v, want 0.0", m.TimingSlackNs)
	}
}
