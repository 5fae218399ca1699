package flow

import (
	"testing"
	"time"
)

func TestDecodeOptionsDefaults(t *testing.T) {
	opts, err := DecodeOptions(map[string]any{"part": "xc7a35t"})
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if opts.NumThreads != 4 {
		t.Errorf("NumThreads = %d, want 4", opts.NumThreads)
	}
	if opts.Timeout != time.Hour {
		t.Errorf("Timeout = %s, want 1h", opts.Timeout)
	}
	if !opts.FailOnTiming {
		t.Error("FailOnTiming should default to true")
	}
	if opts.FailOnCriticalWarning {
		t.Error("FailOnCriticalWarning should default to false")
	}
	if !opts.AllowBRAM || !opts.AllowDSP {
		t.Error("resource inference should default to allowed")
	}
	if opts.RunDir != "hdlflow_run" {
		t.Errorf("RunDir = %s", opts.RunDir)
	}
}

func TestDecodeOptionsMissingPart(t *testing.T) {
	_, err := DecodeOptions(map[string]any{})
	ce, ok := AsConfigurationError(err)
	if !ok || ce.Code != CodeInvalidOptions {
		t.Fatalf("expected %s, got %v", CodeInvalidOptions, err)
	}
}

func TestDecodeOptionsUnknownKeyRejected(t *testing.T) {
	_, err := DecodeOptions(map[string]any{"part": "xc7a35t", "numthreads": 8})
	if err == nil {
		t.Fatal("typo'd key silently ignored")
	}
}

func TestDecodeOptionsCoercion(t *testing.T) {
	opts, err := DecodeOptions(map[string]any{
		"part":           "xc7a35t",
		"nthreads":       "8",   // string -> int
		"timeout":        "30m", // duration string
		"fail_on_timing": "false",
		"fail_if":        []any{"wns < 0.1"},
	})
	if err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if opts.NumThreads != 8 {
		t.Errorf("NumThreads = %d, want 8", opts.NumThreads)
	}
	if opts.Timeout != 30*time.Minute {
		t.Errorf("Timeout = %s, want 30m", opts.Timeout)
	}
	if opts.FailOnTiming {
		t.Error("FailOnTiming not coerced to false")
	}
	if len(opts.FailIf) != 1 {
		t.Errorf("FailIf = %v", opts.FailIf)
	}
}

func TestDecodeOptionsValidation(t *testing.T) {
	tests := []map[string]any{
		{"part": "xc7a35t", "nthreads": 0},
		{"part": "xc7a35t", "nthreads": 129},
		{"part": "xc7a35t", "timeout": "1ms"},
		{"part": "xc7a35t", "input_delay": -1.0},
	}
	for _, raw := range tests {
		if _, err := DecodeOptions(raw); err == nil {
			t.Errorf("DecodeOptions(%v): expected validation error", raw)
		}
	}
}

func TestDecodeOptionsBadFailIf(t *testing.T) {
	_, err := DecodeOptions(map[string]any{"part": "xc7a35t", "fail_if": []any{"wns <"}})
	ce, ok := AsConfigurationError(err)
	if !ok || ce.Code != CodeInvalidOptions {
		t.Fatalf("expected %s, got %v", CodeInvalidOptions, err)
	}
}

func TestStageOptionsMapping(t *testing.T) {
	opts := Options{
		SynthOptions: "-directive X",
		RouteOptions: "-directive Y",
	}
	if got := opts.StageOptions(StageSynth); got != "-directive X" {
		t.Errorf("synth options = %q", got)
	}
	if got := opts.StageOptions(StageRoute); got != "-directive Y" {
		t.Errorf("route options = %q", got)
	}
	if got := opts.StageOptions(StageReport); got != "" {
		t.Errorf("report stage has no options, got %q", got)
	}
}

func TestApplyOverrides(t *testing.T) {
	settings := map[string]any{"part": "xc7a35t", "nthreads": 4}
	out, err := ApplyOverrides(settings, []string{"nthreads=8", "synth_options=-directive Default"})
	if err != nil {
		t.Fatalf("ApplyOverrides: %v", err)
	}
	if out["nthreads"] != "8" {
		t.Errorf("nthreads = %v", out["nthreads"])
	}
	if out["synth_options"] != "-directive Default" {
		t.Errorf("synth_options = %v", out["synth_options"])
	}
	// Input map is not mutated.
	if settings["nthreads"] != 4 {
		t.Error("ApplyOverrides mutated its input")
	}

	if _, err := ApplyOverrides(settings, []string{"no-equals-sign"}); err == nil {
		t.Error("malformed override accepted")
	}
}

func TestPolicyExtraction(t *testing.T) {
	opts := Options{FailOnTiming: true, FailOnCriticalWarning: true, FailIf: []string{"wns < 0"}}
	p := opts.Policy()
	if !p.FailOnTiming || !p.FailOnCriticalWarning || len(p.FailIf) != 1 {
		t.Errorf("Policy = %+v", p)
	}
}
