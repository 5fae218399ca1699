package flow

// Outcome is the judged result of one completed (or aborted) run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimingFailure  Outcome = "timing_failure"
	OutcomeWarningFailure Outcome = "warning_failure"
	OutcomeToolError      Outcome = "tool_error"
)

// Metrics holds the structured results extracted from backend reports.
// Nil pointer fields mean "stage never ran", which is distinct from zero:
// a zero timing slack is a legitimate just-met-timing result.
type Metrics struct {
	// TimingSlackNs is the worst setup slack from the final post-route
	// timing summary. Nil when routing never completed.
	TimingSlackNs *float64 `json:"timing_slack_ns"`
	// HoldSlackNs is the worst hold slack, when the backend reports one.
	HoldSlackNs *float64 `json:"hold_slack_ns,omitempty"`
	// CriticalWarnings counts critical/error-severity messages after
	// suppression-list filtering.
	CriticalWarnings int `json:"critical_warnings"`
	// Utilization maps resource name (lut, ff, latch, bram, dsp, ...) to count.
	// Empty when the utilization report was not produced.
	Utilization map[string]int `json:"utilization,omitempty"`
	// PowerMw is total on-chip power in milliwatts, nil when no power report ran.
	PowerMw *float64 `json:"power_mw,omitempty"`
	// Extra carries backend-specific values (fmax, endpoint counts, ...).
	Extra map[string]any `json:"extra,omitempty"`
}

// Values flattens the metrics into the namespace visible to fail_if
// expressions: wns, whs, critical_warnings, power_mw, util.<resource>,
// plus every Extra entry.
func (m Metrics) Values() map[string]any {
	vals := map[string]any{
		"critical_warnings": m.CriticalWarnings,
	}
	if m.TimingSlackNs != nil {
		vals["wns"] = *m.TimingSlackNs
	}
	if m.HoldSlackNs != nil {
		vals["whs"] = *m.HoldSlackNs
	}
	if m.PowerMw != nil {
		vals["power_mw"] = *m.PowerMw
	}
	util := map[string]any{}
	for k, v := range m.Utilization {
		util[k] = v
	}
	vals["util"] = util
	for k, v := range m.Extra {
		vals[k] = v
	}
	return vals
}

// Verdict is the terminal result of a run. Immutable once produced.
type Verdict struct {
	Outcome     Outcome  `json:"outcome"`
	Diagnostics []string `json:"diagnostics"`
	Metrics     Metrics  `json:"metrics"`
}

// Passed reports whether the verdict represents an acceptable build.
func (v Verdict) Passed() bool {
	return v.Outcome == OutcomeSuccess
}

// Float64Ptr returns a pointer to v. Convenience for building Metrics.
func Float64Ptr(v float64) *float64 {
	return &v
}
