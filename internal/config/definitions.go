package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Harshitk-cp/elicit/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultDefinitions []byte

// Definitions are the methodology and strategy set an engine runs with.
type Definitions struct {
	Methodology     domain.Methodology      `yaml:"methodology"`
	DefaultStrategy string                  `yaml:"default_strategy"`
	Strategies      []domain.StrategyConfig `yaml:"strategies"`
}

func (d *Definitions) StrategyIDs() []string {
	ids := make([]string, len(d.Strategies))
	for i, s := range d.Strategies {
		ids[i] = s.ID
	}
	return ids
}

// DefaultDefinitions returns the built-in laddering methodology and strategies.
func DefaultDefinitions() *Definitions {
	d, err := ParseDefinitions(defaultDefinitions)
	if err != nil {
		panic(fmt.Sprintf("built-in definitions are invalid: %v", err))
	}
	return d
}

// LoadDefinitions reads definitions from path. A missing file yields the
// built-in definitions; a malformed one is a ConfigurationError.
func LoadDefinitions(path string) (*Definitions, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultDefinitions(), false, nil
	}
	if err != nil {
		return nil, false, &domain.ConfigurationError{Component: "definitions", Reason: "read " + path, Err: err}
	}
	d, err := ParseDefinitions(data)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// ParseDefinitions decodes YAML definitions, rejecting unknown fields.
// Signal keys are checked later against the signal catalog.
func ParseDefinitions(data []byte) (*Definitions, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definitions
	if err := dec.Decode(&d); err != nil {
		return nil, &domain.ConfigurationError{Component: "definitions", Reason: "decode yaml", Err: err}
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Definitions) validate() error {
	m := d.Methodology
	if m.Name == "" {
		return domain.NewConfigurationError("methodology", "name is required")
	}
	if len(m.NodeTypes) == 0 {
		return domain.NewConfigurationError("methodology", "%s declares no node types", m.Name)
	}
	seen := make(map[string]bool, len(m.NodeTypes))
	for _, nt := range m.NodeTypes {
		if nt.Name == "" {
			return domain.NewConfigurationError("methodology", "node type without name")
		}
		if seen[nt.Name] {
			return domain.NewConfigurationError("methodology", "duplicate node type %q", nt.Name)
		}
		seen[nt.Name] = true
		if nt.Level < 1 {
			return domain.NewConfigurationError("methodology", "node type %q has level %d, must be at least 1", nt.Name, nt.Level)
		}
	}

	if len(d.Strategies) == 0 {
		return domain.NewConfigurationError("strategies", "no strategies defined")
	}
	for _, s := range d.Strategies {
		if len(s.SignalWeights) == 0 {
			return domain.NewConfigurationError("strategies", "strategy %q has no signal weights", s.ID)
		}
	}
	return nil
}
