package flow

import (
	"context"
	"fmt"
	"log/slog"
)

// State is one phase of a single orchestrated run.
type State string

const (
	StateInit       State = "init"
	StateRendering  State = "rendering"
	StateRunning    State = "running"
	StateParsing    State = "parsing"
	StateVerdicting State = "verdicting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// stateTransitions encodes the legal moves. No state is re-entered;
// Done and Failed are terminal.
var stateTransitions = map[State][]State{
	StateInit:       {StateRendering},
	StateRendering:  {StateRunning, StateFailed},
	StateRunning:    {StateParsing, StateFailed},
	StateParsing:    {StateVerdicting, StateFailed},
	StateVerdicting: {StateDone},
	StateDone:       {},
	StateFailed:     {},
}

// Orchestrator coordinates one run: select backend, render, run, parse,
// verdict. Instances are single-use with respect to state; create one per
// invocation (independent invocations may run fully in parallel, each with
// its own Orchestrator and RunContext).
type Orchestrator struct {
	l        *slog.Logger
	registry *Registry
	runner   *Runner
	verdicts *VerdictEngine
	state    State
	runID    string
}

func NewOrchestrator(l *slog.Logger, registry *Registry) *Orchestrator {
	return &Orchestrator{
		l:        l,
		registry: registry,
		runner:   NewRunner(l),
		verdicts: NewVerdictEngine(l),
		state:    StateInit,
	}
}

// State returns the current run phase.
func (o *Orchestrator) State() State {
	return o.state
}

// RunID returns the identifier of the run, empty until a RunContext exists.
func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) advance(to State) error {
	for _, legal := range stateTransitions[o.state] {
		if legal == to {
			o.l.Debug("state transition", "from", o.state, "to", to)
			o.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", o.state, to)
}

func (o *Orchestrator) fail(err error) error {
	_ = o.advance(StateFailed)
	return err
}

// Execute runs the full pipeline for one design against one backend and
// returns the judged verdict. Configuration problems are rejected before any
// subprocess is launched; tool failures surface as *ToolError with the
// captured diagnostic tail. Earlier-stage artifacts are never rolled back.
func (o *Orchestrator) Execute(ctx context.Context, d Design, def FlowDefinition, opts Options) (Verdict, error) {
	if err := d.Validate(); err != nil {
		return Verdict{}, o.fail(err)
	}
	if err := def.Validate(); err != nil {
		return Verdict{}, o.fail(err)
	}

	b, err := o.registry.Get(def.BackendID)
	if err != nil {
		return Verdict{}, o.fail(err)
	}
	if err := o.checkBackendInputs(b, d, opts); err != nil {
		return Verdict{}, o.fail(err)
	}

	// The RunContext must be fully populated before rendering starts.
	rc, err := NewRunContext(opts.RunDir, d.Name, b.ID(), b.Capabilities().ScriptExt, opts.NumThreads)
	if err != nil {
		return Verdict{}, o.fail(err)
	}
	defer rc.Release()
	o.runID = rc.RunID

	o.l.Info("starting flow",
		"design", d.Name, "backend", b.ID(), "strategy", def.Strategy,
		"part", opts.Part, "run_id", rc.RunID)

	if err := o.advance(StateRendering); err != nil {
		return Verdict{}, err
	}
	script, err := b.RenderScript(def, d, opts, rc)
	if err != nil {
		return Verdict{}, o.fail(err)
	}

	if err := o.advance(StateRunning); err != nil {
		return Verdict{}, err
	}
	capture, runErr := o.runner.Run(ctx, def, b, script, rc, opts)
	if runErr != nil {
		// Exit code 1 is the rendered script's own timing-failure signal
		// (the decision block the backend evaluates itself). Fall through to
		// parsing so the verdict is judged from the report files; the two
		// paths must agree. Everything else is a genuine tool failure.
		te, ok := AsToolError(runErr)
		if !ok || te.Code != CodeNonZeroExit || te.ExitCode != 1 {
			return Verdict{}, o.fail(runErr)
		}
	}

	if err := o.advance(StateParsing); err != nil {
		return Verdict{}, err
	}
	metrics, diags, err := b.ParseReports(rc, capture)
	if err != nil {
		return Verdict{}, o.fail(NewToolError(CodeReportParse,
			fmt.Sprintf("failed to parse %s reports: %v", b.ID(), err)).WithCause(err))
	}

	if err := o.advance(StateVerdicting); err != nil {
		return Verdict{}, err
	}
	diags = append(diags, o.constraintDiagnostics(b, d)...)
	verdict := o.verdicts.Decide(metrics, opts.Policy(), diags)
	if runErr != nil && verdict.Outcome == OutcomeSuccess {
		// The in-tool decision block and the re-derived metrics disagree;
		// never report a clean build on a failed exit.
		verdict = Verdict{
			Outcome: OutcomeToolError,
			Diagnostics: append(verdict.Diagnostics,
				fmt.Sprintf("backend exited with code 1 but reports show no violation: %v", runErr)),
			Metrics: verdict.Metrics,
		}
	}

	if err := WriteResults(rc, d, def, verdict); err != nil {
		o.l.Error("failed to write results document", "path", rc.ResultsJSONPath(), "error", err)
	}

	if err := o.advance(StateDone); err != nil {
		return Verdict{}, err
	}
	o.l.Info("flow finished", "design", d.Name, "backend", b.ID(), "outcome", verdict.Outcome, "run_id", rc.RunID)
	return verdict, nil
}

// checkBackendInputs rejects unsupported parts and dialects up front.
func (o *Orchestrator) checkBackendInputs(b Backend, d Design, opts Options) error {
	if !SupportsPart(b, opts.Part) {
		return NewConfigurationError(CodeUnsupportedPart,
			fmt.Sprintf("part %q is not supported by backend %s (supported: %v)",
				opts.Part, b.ID(), b.SupportedParts())).
			WithMeta("supported_parts", b.SupportedParts())
	}
	caps := b.Capabilities()
	for _, s := range d.SynthSources() {
		if !caps.SupportsDialect(s.Dialect) {
			return NewConfigurationError(CodeUnsupportedDialect,
				fmt.Sprintf("backend %s does not support dialect %s (source %s)", b.ID(), s.Dialect, s.Path))
		}
	}
	return nil
}

// constraintDiagnostics records constraint files the backend skipped.
func (o *Orchestrator) constraintDiagnostics(b Backend, d Design) []string {
	var diags []string
	caps := b.Capabilities()
	for _, c := range d.Constraints {
		if !caps.SupportsConstraint(c.Kind) {
			diags = append(diags, fmt.Sprintf("constraint %s skipped: backend %s does not accept %s constraints",
				c.Path, b.ID(), c.Kind))
		}
	}
	return diags
}
