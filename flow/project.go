package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is the caller-supplied configuration file: the designs of a
// workspace plus per-backend flow settings.
//
//	designs:
//	  - name: counter
//	    top: counter
//	    clock: {port: clk, period: 10.0}
//	    sources:
//	      - {path: rtl/counter.vhd, dialect: vhdl}
//	flows:
//	  vivado:
//	    strategy: Default
//	    part: xc7a35t
//	    fail_on_timing: true
//	notify:
//	  url: https://ci.example.com/hooks/hdlflow
type Project struct {
	Designs []Design                  `yaml:"designs"`
	Flows   map[string]map[string]any `yaml:"flows"`
	// Notify is decoded by the notify package; kept raw here so the core
	// carries no dependency on the notifier.
	Notify map[string]any `yaml:"notify"`
}

// LoadProject reads and validates a project YAML file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading project file: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("error unmarshalling project file: %w", err)
	}

	if len(p.Designs) == 0 {
		return nil, NewConfigurationError(CodeInvalidDesign, "project file declares no designs")
	}
	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("error resolving project directory: %w", err)
	}
	for i := range p.Designs {
		fillSourceDialects(&p.Designs[i])
		resolvePaths(&p.Designs[i], baseDir)
		if err := p.Designs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// resolvePaths anchors relative source and constraint paths to the project
// file's directory. Generated scripts execute inside the run directory, so
// paths left relative would resolve against the wrong base.
func resolvePaths(d *Design, baseDir string) {
	for i, s := range d.Sources {
		if !filepath.IsAbs(s.Path) {
			d.Sources[i].Path = filepath.Join(baseDir, s.Path)
		}
	}
	for i, c := range d.Constraints {
		if !filepath.IsAbs(c.Path) {
			d.Constraints[i].Path = filepath.Join(baseDir, c.Path)
		}
	}
}

// fillSourceDialects infers missing dialects from file extensions so the
// project file only needs to tag ambiguous sources.
func fillSourceDialects(d *Design) {
	for i, s := range d.Sources {
		if s.Dialect == "" {
			if inferred, ok := InferDialect(s.Path); ok {
				d.Sources[i].Dialect = inferred
			}
		}
	}
}

// Design looks up a design by name. When name is empty and the project holds
// exactly one design, that design is returned.
func (p *Project) Design(name string) (Design, error) {
	if name == "" {
		if len(p.Designs) == 1 {
			return p.Designs[0], nil
		}
		return Design{}, NewConfigurationError(CodeInvalidDesign,
			fmt.Sprintf("%d designs in project, specify one of: %s", len(p.Designs), strings.Join(p.DesignNames(), ", ")))
	}
	for _, d := range p.Designs {
		if d.Name == name {
			return d, nil
		}
	}
	return Design{}, NewConfigurationError(CodeInvalidDesign,
		fmt.Sprintf("design %q not found in project (available: %s)", name, strings.Join(p.DesignNames(), ", ")))
}

// DesignNames returns the declared design names, sorted.
func (p *Project) DesignNames() []string {
	names := make([]string, 0, len(p.Designs))
	for _, d := range p.Designs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// FlowSettings returns the raw settings map for a backend, minus the
// "strategy" key, which is returned separately (it selects the flow
// definition rather than configuring the run).
func (p *Project) FlowSettings(backendID string) (settings map[string]any, strategy string) {
	raw, ok := p.Flows[backendID]
	if !ok {
		return map[string]any{}, ""
	}
	settings = make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "strategy" {
			strategy, _ = v.(string)
			continue
		}
		settings[k] = v
	}
	return settings, strategy
}
