package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PresetPrefix marks a model identifier that refers to a named preset.
const PresetPrefix = "preset:"

// Preset is a named model configuration.
type Preset struct {
	ModelID    string `yaml:"model_id"`
	MinLength  int    `yaml:"min_length"`
	MaxLength  int    `yaml:"max_length"`
	SecondPass *bool  `yaml:"second_pass"`
}

// Presets is the parsed presets file.
//
//	presets:
//	  bart:
//	    model_id: facebook/bart-large-cnn
//	    min_length: 40
//	    max_length: 150
//	  clinical:
//	    model_id: my-org/clinical-t5
//	    max_length: 200
//	    second_pass: false
type Presets struct {
	Presets map[string]Preset `yaml:"presets"`
}

// LoadPresets reads and validates a presets file.
func LoadPresets(path string) (*Presets, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var presets Presets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	if err := presets.Validate(); err != nil {
		return nil, fmt.Errorf("invalid presets file: %w", err)
	}

	return &presets, nil
}

// Validate checks every preset.
func (p *Presets) Validate() error {
	for _, name := range p.Names() {
		preset := p.Presets[name]
		if strings.TrimSpace(preset.ModelID) == "" {
			return fmt.Errorf("preset %q: model_id is required", name)
		}
		if preset.MinLength < 0 || preset.MaxLength < 0 {
			return fmt.Errorf("preset %q: lengths must not be negative", name)
		}
		if preset.MinLength > 0 && preset.MaxLength > 0 && preset.MinLength > preset.MaxLength {
			return fmt.Errorf("preset %q: min_length must be <= max_length", name)
		}
	}
	return nil
}

// Names returns the preset names in sorted order.
func (p *Presets) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Presets))
	for name := range p.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves a "preset:<name>" identifier. ok is false when id does not
// carry the prefix. A prefixed id naming an unknown preset is an error.
func (p *Presets) Lookup(id string) (preset Preset, ok bool, err error) {
	name, found := strings.CutPrefix(strings.TrimSpace(id), PresetPrefix)
	if !found {
		return Preset{}, false, nil
	}
	if p != nil {
		if preset, exists := p.Presets[name]; exists {
			return preset, true, nil
		}
	}
	return Preset{}, true, fmt.Errorf("unknown model preset %q", name)
}
