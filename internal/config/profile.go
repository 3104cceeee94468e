package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Profile is the device-model capability document: locale enum tables,
// error reference tables and the control groups the firmware accepts.
// It satisfies device.DeviceInfo.
type Profile struct {
	Device struct {
		Name     string `yaml:"name"`
		Category string `yaml:"category"`
	} `yaml:"device"`

	// Enums maps a field name to its code-to-label table.
	Enums map[string]map[string]string `yaml:"enums"`

	// References maps a field name to its code-to-record table.
	References map[string]map[string]ReferenceEntry `yaml:"references"`

	// Controls maps a control group to the commands it accepts.
	Controls map[string][]string `yaml:"controls"`
}

// ReferenceEntry is one record of a reference table.
type ReferenceEntry struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// LoadProfile reads and decodes a device profile from a YAML file.
func LoadProfile(path string, logger *zap.Logger) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device profile: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse device profile: %w", err)
	}

	logger.Info("Device profile loaded",
		zap.String("path", path),
		zap.String("model", profile.Device.Name),
		zap.Int("enum_tables", len(profile.Enums)),
		zap.Int("reference_tables", len(profile.References)),
		zap.Int("control_groups", len(profile.Controls)))

	return &profile, nil
}

// EnumLabel maps a raw enum code for a field to its label.
func (p *Profile) EnumLabel(field, code string) (string, bool) {
	label, ok := p.Enums[field][code]
	return label, ok
}

// EnumCode is the reverse lookup, label to code.
func (p *Profile) EnumCode(field, label string) (string, bool) {
	for code, l := range p.Enums[field] {
		if l == label {
			return code, true
		}
	}
	return "", false
}

// ReferenceTitle resolves a reference code for a field to the title
// attribute of its record.
func (p *Profile) ReferenceTitle(field, code string) (string, bool) {
	entry, ok := p.References[field][code]
	if !ok {
		return "", false
	}
	return entry.Title, true
}

// SupportsCommand reports whether the firmware accepts a control
// group/command pair. An empty command matches the bare group.
func (p *Profile) SupportsCommand(group, command string) bool {
	commands, ok := p.Controls[group]
	if !ok {
		return false
	}
	if command == "" {
		return true
	}
	for _, c := range commands {
		if c == command {
			return true
		}
	}
	return false
}
