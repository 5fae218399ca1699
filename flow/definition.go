package flow

import (
	"fmt"
	"strings"
)

// Stage is one discrete step of a synthesis pipeline.
type Stage string

const (
	StageReadSources Stage = "read_sources"
	StageSynth       Stage = "synth"
	StageOpt         Stage = "opt"
	StagePlace       Stage = "place"
	StagePlaceOpt    Stage = "place_opt"
	StagePhysOpt     Stage = "phys_opt"
	StagePowerOpt    Stage = "power_opt"
	StageRoute       Stage = "route"
	StageReport      Stage = "report"
)

// stageOrder is the canonical position of every stage. Flow definitions must
// list stages in strictly increasing order: no stage may re-run an earlier
// stage's effects.
var stageOrder = map[Stage]int{
	StageReadSources: 0,
	StageSynth:       1,
	StageOpt:         2,
	StagePlace:       3,
	StagePlaceOpt:    4,
	StagePhysOpt:     5,
	StagePowerOpt:    6,
	StageRoute:       7,
	StageReport:      8,
}

// Strategy selects which optional stages run and with what options.
// Closed set; free-form strategies are rejected at parse time.
type Strategy string

const (
	StrategyDefault Strategy = "Default"
	StrategyDebug   Strategy = "Debug"
	StrategyRuntime Strategy = "Runtime"
	StrategyPower   Strategy = "Power"
	StrategyArea    Strategy = "Area"
)

// Strategies lists all valid strategies.
func Strategies() []Strategy {
	return []Strategy{StrategyDefault, StrategyDebug, StrategyRuntime, StrategyPower, StrategyArea}
}

// ParseStrategy resolves a strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", NewConfigurationError(CodeUnknownStrategy,
		fmt.Sprintf("unknown strategy %q (valid: Default, Debug, Runtime, Power, Area)", s))
}

// OmitsOptimization reports whether optimization stages (opt, place_opt,
// phys_opt) are excluded. Debug builds must not be restructured by the
// optimizer, and Runtime builds trade quality for turnaround.
func (s Strategy) OmitsOptimization() bool {
	return s == StrategyDebug || s == StrategyRuntime
}

// FlowDefinition is a named synthesis pipeline for one backend family.
type FlowDefinition struct {
	BackendID string
	Strategy  Strategy
	Stages    []Stage
}

// NewFlowDefinition builds the stage sequence implied by the strategy.
// The Power strategy adds the power optimization stage; Debug and Runtime
// omit every optimization stage.
func NewFlowDefinition(backendID string, strategy Strategy) FlowDefinition {
	stages := []Stage{StageReadSources, StageSynth}
	if !strategy.OmitsOptimization() {
		stages = append(stages, StageOpt)
	}
	stages = append(stages, StagePlace)
	if !strategy.OmitsOptimization() {
		stages = append(stages, StagePlaceOpt, StagePhysOpt)
	}
	if strategy == StrategyPower {
		stages = append(stages, StagePowerOpt)
	}
	stages = append(stages, StageRoute, StageReport)

	return FlowDefinition{
		BackendID: backendID,
		Strategy:  strategy,
		Stages:    stages,
	}
}

// HasStage reports whether the stage is part of this definition.
func (f FlowDefinition) HasStage(stage Stage) bool {
	for _, s := range f.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// ReportedStages returns the stages that emit per-stage report directories.
func (f FlowDefinition) ReportedStages() []Stage {
	var out []Stage
	for _, s := range f.Stages {
		switch s {
		case StageSynth, StagePlace, StageRoute:
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the monotonic-ordering invariant.
func (f FlowDefinition) Validate() error {
	if f.BackendID == "" {
		return NewConfigurationError(CodeUnknownBackend, "flow definition has no backend")
	}
	if len(f.Stages) == 0 {
		return NewConfigurationError(CodeInvalidDesign, "flow definition has no stages")
	}
	prev := -1
	for _, s := range f.Stages {
		pos, ok := stageOrder[s]
		if !ok {
			return NewConfigurationError(CodeInvalidDesign, fmt.Sprintf("unknown stage %q", s))
		}
		if pos <= prev {
			return NewConfigurationError(CodeInvalidDesign,
				fmt.Sprintf("stage %q out of order: stages must be monotonic", s))
		}
		prev = pos
	}
	if f.Strategy.OmitsOptimization() {
		for _, s := range f.Stages {
			if s == StageOpt || s == StagePlaceOpt || s == StagePhysOpt {
				return NewConfigurationError(CodeInvalidDesign,
					fmt.Sprintf("strategy %s must not include stage %q", f.Strategy, s))
			}
		}
	}
	return nil
}
