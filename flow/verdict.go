package flow

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
)

// Policy holds the user-configured failure policy applied to parsed metrics.
type Policy struct {
	FailOnTiming          bool
	FailOnCriticalWarning bool
	// FailIf holds additional boolean expressions over the metrics
	// namespace (wns, whs, critical_warnings, util.<resource>, power_mw).
	// Any expression evaluating to true fails the build.
	FailIf []string
}

// CompileFailIf checks every fail_if expression up front so a bad expression
// is a ConfigurationError before the run starts, not a surprise at verdict time.
func CompileFailIf(exprs []string) error {
	for _, e := range exprs {
		if _, err := expr.Compile(e, expr.AllowUndefinedVariables()); err != nil {
			return NewConfigurationError(CodeInvalidOptions,
				fmt.Sprintf("invalid fail_if expression %q: %v", e, err)).WithMeta("expression", e)
		}
	}
	return nil
}

// VerdictEngine applies the failure policy to parsed metrics.
type VerdictEngine struct {
	l *slog.Logger
}

func NewVerdictEngine(l *slog.Logger) *VerdictEngine {
	return &VerdictEngine{l: l}
}

// Decide produces exactly one outcome, evaluating the decision table
// top to bottom, first match wins:
//
//  1. nil slack          -> ToolError (routing never produced a judged result)
//  2. slack < 0, policy  -> TimingFailure
//  3. slack < 0, lenient -> falls through; the miss is still recorded
//  4. critical warnings under fail_on_critical_warning -> WarningFailure
//  5. any fail_if rule true -> WarningFailure
//  6. otherwise          -> Success
func (e *VerdictEngine) Decide(m Metrics, p Policy, diagnostics []string) Verdict {
	diags := append([]string{}, diagnostics...)

	if m.TimingSlackNs == nil {
		diags = append(diags, "no post-route timing summary: run never reached routing")
		return Verdict{Outcome: OutcomeToolError, Diagnostics: diags, Metrics: m}
	}

	slack := *m.TimingSlackNs
	timingMet := slack >= 0
	if m.HoldSlackNs != nil && *m.HoldSlackNs < 0 {
		timingMet = false
		diags = append(diags, fmt.Sprintf("hold timing not met: worst hold slack %.3f ns", *m.HoldSlackNs))
	}
	if slack < 0 {
		diags = append(diags, fmt.Sprintf("timing not met: worst setup slack %.3f ns", slack))
	}
	if !timingMet && p.FailOnTiming {
		return Verdict{Outcome: OutcomeTimingFailure, Diagnostics: diags, Metrics: m}
	}

	if m.CriticalWarnings > 0 {
		diags = append(diags, fmt.Sprintf("%d critical warning(s) after suppression", m.CriticalWarnings))
		if p.FailOnCriticalWarning {
			return Verdict{Outcome: OutcomeWarningFailure, Diagnostics: diags, Metrics: m}
		}
	}

	if failed, failDiags := e.evalFailIf(m, p.FailIf); failed {
		diags = append(diags, failDiags...)
		return Verdict{Outcome: OutcomeWarningFailure, Diagnostics: diags, Metrics: m}
	}

	return Verdict{Outcome: OutcomeSuccess, Diagnostics: diags, Metrics: m}
}

func (e *VerdictEngine) evalFailIf(m Metrics, exprs []string) (bool, []string) {
	if len(exprs) == 0 {
		return false, nil
	}
	env := m.Values()
	var diags []string
	failed := false
	for _, rule := range exprs {
		program, err := expr.Compile(rule, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			// Compile-checked at options time; reaching this means the
			// metrics namespace changed shape. Record, don't fail the build.
			e.l.Error("fail_if expression no longer compiles", "expression", rule, "error", err)
			diags = append(diags, fmt.Sprintf("fail_if %q skipped: %v", rule, err))
			continue
		}
		out, err := expr.Run(program, env)
		if err != nil {
			e.l.Error("fail_if expression failed to evaluate", "expression", rule, "error", err)
			diags = append(diags, fmt.Sprintf("fail_if %q skipped: %v", rule, err))
			continue
		}
		hit, ok := out.(bool)
		if !ok {
			diags = append(diags, fmt.Sprintf("fail_if %q evaluated to %T, expected boolean", rule, out))
			continue
		}
		if hit {
			failed = true
			diags = append(diags, fmt.Sprintf("fail_if rule matched: %s", rule))
		}
	}
	return failed, diags
}
