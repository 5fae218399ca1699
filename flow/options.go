package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// Options is the per-run configuration map, decoded and validated once at
// orchestration start. Stage option strings are opaque pass-through flags;
// the renderer splices them into the generated script verbatim.
type Options struct {
	Part string `json:"part" validate:"required"`

	NumThreads int           `json:"nthreads" default:"4" validate:"gte=1,lte=128"`
	Timeout    time.Duration `json:"timeout" default:"1h" validate:"gte=1s"`
	RunDir     string        `json:"run_dir" default:"hdlflow_run"`

	FailOnTiming          bool     `json:"fail_on_timing" default:"true"`
	FailOnCriticalWarning bool     `json:"fail_on_critical_warning" default:"false"`
	FailIf                []string `json:"fail_if"`

	SynthOptions    string `json:"synth_options"`
	OptOptions      string `json:"opt_options"`
	PlaceOptions    string `json:"place_options"`
	PlaceOptOptions string `json:"place_opt_options"`
	PhysOptOptions  string `json:"phys_opt_options"`
	RouteOptions    string `json:"route_options"`

	AllowBRAM bool `json:"allow_bram" default:"true"`
	AllowDSP  bool `json:"allow_dsp" default:"true"`

	InputDelayNs  float64 `json:"input_delay" validate:"gte=0"`
	OutputDelayNs float64 `json:"output_delay" validate:"gte=0"`

	// Bitstream asks the backend to emit a programming file in results/.
	Bitstream bool `json:"bitstream" default:"false"`
}

// Policy extracts the failure-policy subset of the options.
func (o Options) Policy() Policy {
	return Policy{
		FailOnTiming:          o.FailOnTiming,
		FailOnCriticalWarning: o.FailOnCriticalWarning,
		FailIf:                o.FailIf,
	}
}

// DecodeOptions turns a raw configuration map into validated Options:
// defaults from struct tags, then value merging, then validation.
// Unknown keys are rejected so a typo fails loudly instead of being ignored.
func DecodeOptions(raw map[string]any) (Options, error) {
	var opts Options
	if err := defaults.Set(&opts); err != nil {
		return opts, NewConfigurationError(CodeInvalidOptions, fmt.Sprintf("failed to apply defaults: %v", err))
	}

	if len(raw) > 0 {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &opts,
			TagName:     "json",
			ErrorUnused: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			WeaklyTypedInput: true,
		})
		if err != nil {
			return opts, fmt.Errorf("failed to create options decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return opts, NewConfigurationError(CodeInvalidOptions, fmt.Sprintf("bad options: %v", err))
		}
	}

	if err := validate.Struct(opts); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("field %q failed rule %q", fe.Field(), fe.Tag()))
			}
			return opts, NewConfigurationError(CodeInvalidOptions,
				"options validation failed: "+strings.Join(msgs, "; "))
		}
		return opts, NewConfigurationError(CodeInvalidOptions, fmt.Sprintf("options validation failed: %v", err))
	}

	if err := CompileFailIf(opts.FailIf); err != nil {
		return opts, err
	}

	return opts, nil
}

// StageOptions returns the pass-through option string configured for a stage.
func (o Options) StageOptions(stage Stage) string {
	switch stage {
	case StageSynth:
		return o.SynthOptions
	case StageOpt:
		return o.OptOptions
	case StagePlace:
		return o.PlaceOptions
	case StagePlaceOpt:
		return o.PlaceOptOptions
	case StagePhysOpt:
		return o.PhysOptOptions
	case StageRoute:
		return o.RouteOptions
	default:
		return ""
	}
}

// ApplyOverrides patches a raw settings map with "key=value" pairs from the
// command line. Dotted keys address nested maps; values stay strings and are
// coerced by the weakly-typed options decoder.
func ApplyOverrides(settings map[string]any, overrides []string) (map[string]any, error) {
	out := map[string]any{}
	for k, v := range settings {
		out[k] = v
	}
	for _, ov := range overrides {
		key, val, found := strings.Cut(ov, "=")
		if !found {
			return nil, NewConfigurationError(CodeInvalidOptions,
				fmt.Sprintf("override %q is not of the form key=value", ov))
		}
		parts := strings.Split(key, ".")
		m := out
		for _, field := range parts[:len(parts)-1] {
			next, ok := m[field].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[field] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = val
	}
	return out, nil
}
