package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRuntimeConfig reads a YAML document at path and merges it over the
// defaults, normalizing the result. An empty path returns the defaults
// unchanged.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.Normalized(), nil
}

// ScenarioDocument is the on-disk shape for an ad hoc scenario file, as
// opposed to the seven built-in bit-exact identifiers.
type ScenarioDocument struct {
	ID            string               `yaml:"id"`
	Description   string               `yaml:"description"`
	Intersections []IntersectionSpec   `yaml:"intersections"`
	Agents        []AgentSpec          `yaml:"agents"`
}

// IntersectionSpec describes one intersection in a scenario document.
type IntersectionSpec struct {
	ID         string  `yaml:"id"`
	CenterX    float64 `yaml:"centerX"`
	CenterY    float64 `yaml:"centerY"`
	Controlled bool    `yaml:"controlled"`
}

// AgentSpec describes one initial agent in a scenario document.
type AgentSpec struct {
	ID          string  `yaml:"id"`
	X           float64 `yaml:"x"`
	Y           float64 `yaml:"y"`
	HeadingDeg  float64 `yaml:"headingDeg"`
	SpeedMPS    float64 `yaml:"speedMps"`
	Intent      string  `yaml:"intent"`
	Profile     string  `yaml:"profile"` // normal | ambulance | police | drunk
}

// LoadScenarioDocument reads an ad hoc scenario file from disk.
func LoadScenarioDocument(path string) (ScenarioDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ScenarioDocument{}, fmt.Errorf("config: read scenario %s: %w", path, err)
	}
	var doc ScenarioDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return ScenarioDocument{}, fmt.Errorf("config: parse scenario %s: %w", path, err)
	}
	return doc, nil
}
