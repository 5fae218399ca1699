package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hdlflow/backends/quartus"
	"hdlflow/backends/vivado"
	"hdlflow/backends/yosys"
	"hdlflow/flow"
	"hdlflow/notify"
)

var (
	projectFile string
	designName  string
	backendID   string
	strategyArg string
	overrides   []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthesis flow and judge the result",
	Long: `Run renders the backend control script for a design, executes the tool,
parses its reports and prints the verdict.

Settings come from the project file's flows section, patched by --set
key=value overrides. The exit code reflects the verdict: 0 success,
1 timing failure, 2 warning failure, 3 tool error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := newLogger()

		project, err := flow.LoadProject(projectFile)
		if err != nil {
			return err
		}
		d, err := project.Design(designName)
		if err != nil {
			return err
		}

		settings, projectStrategy := project.FlowSettings(backendID)
		settings, err = flow.ApplyOverrides(settings, overrides)
		if err != nil {
			return err
		}

		strategyName := strategyArg
		if strategyName == "" {
			strategyName = projectStrategy
		}
		if strategyName == "" {
			strategyName = string(flow.StrategyDefault)
		}
		strategy, err := flow.ParseStrategy(strategyName)
		if err != nil {
			return err
		}

		opts, err := flow.DecodeOptions(settings)
		if err != nil {
			return err
		}

		def := flow.NewFlowDefinition(backendID, strategy)
		orch := flow.NewOrchestrator(l, newRegistry())
		verdict, err := orch.Execute(cmd.Context(), d, def, opts)
		if err != nil {
			return err
		}

		fmt.Print(flow.FormatResults(d.Name, backendID, verdict))

		notifyVerdict(cmd, l, project, d.Name, string(strategy), orch.RunID(), verdict)

		if code := exitCode(verdict.Outcome); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// newRegistry returns a registry holding every built-in backend.
func newRegistry() *flow.Registry {
	r := flow.NewRegistry()
	r.Register(vivado.New())
	r.Register(quartus.New())
	r.Register(yosys.New())
	return r
}

// notifyVerdict posts the verdict to the project's webhook, when one is
// configured. Delivery failure is logged, never fatal.
func notifyVerdict(cmd *cobra.Command, l *slog.Logger, project *flow.Project, design, strategy, runID string, v flow.Verdict) {
	if len(project.Notify) == 0 {
		return
	}
	cfg, err := notify.DecodeConfig(project.Notify)
	if err != nil {
		l.Error("invalid notify settings", "error", err)
		return
	}
	if err := notify.New(l, cfg).Notify(cmd.Context(), design, backendID, strategy, runID, v); err != nil {
		l.Error("webhook notification failed", "error", err)
	}
}

func exitCode(outcome flow.Outcome) int {
	switch outcome {
	case flow.OutcomeSuccess:
		return 0
	case flow.OutcomeTimingFailure:
		return 1
	case flow.OutcomeWarningFailure:
		return 2
	default:
		return 3
	}
}

func init() {
	runCmd.Flags().StringVarP(&projectFile, "project", "p", "hdlflow.yaml", "project file")
	runCmd.Flags().StringVarP(&designName, "design", "d", "", "design name (optional when the project has one design)")
	runCmd.Flags().StringVarP(&backendID, "backend", "b", "", "backend to run")
	runCmd.Flags().StringVarP(&strategyArg, "strategy", "s", "", "optimization strategy (overrides project setting)")
	runCmd.Flags().StringArrayVar(&overrides, "set", nil, "override a flow setting, key=value (repeatable)")
	_ = runCmd.MarkFlagRequired("backend")
}
