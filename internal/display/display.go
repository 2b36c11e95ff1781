// Package display holds the presentation tables used when reporting
// comparison results: human-readable names, colours, line styles, markers,
// variable groups, rename maps and per-variable unit scales.
//
// A Config is built once and then only read. Every accessor returns copies,
// so callers can pass a Config between goroutines freely.
package display

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"iam-platform/internal/compare"
	"iam-platform/internal/models"
)

// Group is a named, ordered list of variables shown together
type Group struct {
	Name      string   `yaml:"name" json:"name"`
	Variables []string `yaml:"variables" json:"variables"`
}

// Tables is the serialisable form of a Config
type Tables struct {
	ScenarioNames   map[string]string        `yaml:"scenario_names" json:"scenario_names"`
	ModelNames      map[string]string        `yaml:"model_names" json:"model_names"`
	VariableNames   map[string]string        `yaml:"variable_names" json:"variable_names"`
	Colours         map[string]string        `yaml:"colours" json:"colours"`
	ModelLineStyles map[string]string        `yaml:"model_linestyles" json:"model_linestyles"`
	Markers         []string                 `yaml:"markers" json:"markers"`
	Groups          []Group                  `yaml:"groups" json:"groups"`
	ScenarioRenames map[string]string        `yaml:"scenario_renames" json:"scenario_renames"`
	ModelRenames    map[string]string        `yaml:"model_renames" json:"model_renames"`
	VariableRenames map[string]string        `yaml:"variable_renames" json:"variable_renames"`
	UnitScales      map[string]compare.Scale `yaml:"unit_scales" json:"unit_scales"`
}

// Config is a read-only view over Tables
type Config struct {
	t Tables
}

const (
	defaultColour    = "black"
	defaultLineStyle = "-"
)

// New validates t and returns a Config owning a private copy of it
func New(t Tables) (*Config, error) {
	if len(t.Markers) == 0 {
		return nil, fmt.Errorf("display: marker cycle is empty")
	}
	for variable, s := range t.UnitScales {
		if s.Divisor < 0 {
			return nil, fmt.Errorf("display: unit scale for %q has negative divisor %v", variable, s.Divisor)
		}
	}
	for i, g := range t.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("display: group %d has no name", i)
		}
	}
	return &Config{t: t.clone()}, nil
}

// Load reads a YAML file. Sections the file leaves out keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("display: reading %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns the defaults when path is empty
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes YAML display tables over the defaults
func Parse(data []byte) (*Config, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("display: decoding yaml: %w", err)
	}

	d := defaultTables()
	if t.ScenarioNames == nil {
		t.ScenarioNames = d.ScenarioNames
	}
	if t.ModelNames == nil {
		t.ModelNames = d.ModelNames
	}
	if t.VariableNames == nil {
		t.VariableNames = d.VariableNames
	}
	if t.Colours == nil {
		t.Colours = d.Colours
	}
	if t.ModelLineStyles == nil {
		t.ModelLineStyles = d.ModelLineStyles
	}
	if t.Markers == nil {
		t.Markers = d.Markers
	}
	if t.Groups == nil {
		t.Groups = d.Groups
	}
	if t.ScenarioRenames == nil {
		t.ScenarioRenames = d.ScenarioRenames
	}
	if t.ModelRenames == nil {
		t.ModelRenames = d.ModelRenames
	}
	if t.VariableRenames == nil {
		t.VariableRenames = d.VariableRenames
	}
	if t.UnitScales == nil {
		t.UnitScales = d.UnitScales
	}
	return New(t)
}

// Tables returns a copy of the underlying tables
func (c *Config) Tables() Tables {
	return c.t.clone()
}

// ScenarioLabel returns the display name of a scenario, or the id itself
func (c *Config) ScenarioLabel(scenario string) string {
	if name, ok := c.t.ScenarioNames[scenario]; ok {
		return name
	}
	return scenario
}

// ModelLabel returns the display name of a model, or the id itself
func (c *Config) ModelLabel(model string) string {
	if name, ok := c.t.ModelNames[model]; ok {
		return name
	}
	return model
}

// VariableLabel returns the display name of a variable. Unlisted variables
// are shown by their last pipe-separated segment.
func (c *Config) VariableLabel(variable string) string {
	if name, ok := c.t.VariableNames[variable]; ok {
		return name
	}
	if i := strings.LastIndex(variable, "|"); i >= 0 {
		return variable[i+1:]
	}
	return variable
}

func (c *Config) Colour(scenario string) string {
	if colour, ok := c.t.Colours[scenario]; ok {
		return colour
	}
	return defaultColour
}

func (c *Config) LineStyle(model string) string {
	if ls, ok := c.t.ModelLineStyles[model]; ok {
		return ls
	}
	return defaultLineStyle
}

// ModelMarkers assigns markers to models in the given order, cycling
// through the marker list when there are more models than markers.
func (c *Config) ModelMarkers(modelNames []string) map[string]string {
	out := make(map[string]string, len(modelNames))
	for i, m := range modelNames {
		out[m] = c.t.Markers[i%len(c.t.Markers)]
	}
	return out
}

// Group returns the variables of the named group
func (c *Config) Group(name string) ([]string, bool) {
	for _, g := range c.t.Groups {
		if g.Name == name {
			return append([]string(nil), g.Variables...), true
		}
	}
	return nil, false
}

// Renames returns the rename map for a column: scenario, model or variable
func (c *Config) Renames(column string) (map[string]string, error) {
	switch column {
	case models.ColumnScenario:
		return copyMap(c.t.ScenarioRenames), nil
	case models.ColumnModel:
		return copyMap(c.t.ModelRenames), nil
	case models.ColumnVariable:
		return copyMap(c.t.VariableRenames), nil
	}
	return nil, &models.SchemaError{Table: "display", Column: column, Message: "no rename table for column"}
}

// ApplyRenames maps the scenario, model and variable columns through the
// rename tables. The input is not modified.
func (c *Config) ApplyRenames(observations []models.Observation) ([]models.Observation, error) {
	out := observations
	for _, column := range []string{models.ColumnScenario, models.ColumnModel, models.ColumnVariable} {
		mapping, err := c.Renames(column)
		if err != nil {
			return nil, err
		}
		if len(mapping) == 0 {
			continue
		}
		if out, err = compare.RenameColumn(out, column, mapping); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Scale returns the display scale of a variable; unlisted variables are
// shown in source units.
func (c *Config) Scale(variable string) compare.Scale {
	if s, ok := c.t.UnitScales[variable]; ok {
		return s
	}
	return compare.Identity
}

func (t Tables) clone() Tables {
	out := Tables{
		ScenarioNames:   copyMap(t.ScenarioNames),
		ModelNames:      copyMap(t.ModelNames),
		VariableNames:   copyMap(t.VariableNames),
		Colours:         copyMap(t.Colours),
		ModelLineStyles: copyMap(t.ModelLineStyles),
		Markers:         append([]string(nil), t.Markers...),
		ScenarioRenames: copyMap(t.ScenarioRenames),
		ModelRenames:    copyMap(t.ModelRenames),
		VariableRenames: copyMap(t.VariableRenames),
	}
	if t.Groups != nil {
		out.Groups = make([]Group, len(t.Groups))
		for i, g := range t.Groups {
			out.Groups[i] = Group{Name: g.Name, Variables: append([]string(nil), g.Variables...)}
		}
	}
	if t.UnitScales != nil {
		out.UnitScales = make(map[string]compare.Scale, len(t.UnitScales))
		for k, v := range t.UnitScales {
			out.UnitScales[k] = v
		}
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
