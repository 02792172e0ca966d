// Package config loads and validates the pvmon configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the pvmon YAML file.
type Config struct {
	// Schema is the config schema version, e.g. "v1.0.0".
	Schema   string         `yaml:"schema"`
	Provider ProviderConfig `yaml:"provider"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
	Elements []Element      `yaml:"elements"`
}

// ProviderConfig selects and configures the protocol providers.
type ProviderConfig struct {
	// Default is the scheme assumed for bare variable names, "sim" or
	// "modbus". Empty means "sim".
	Default string        `yaml:"default"`
	Sim     SimConfig     `yaml:"sim"`
	Modbus  *ModbusConfig `yaml:"modbus"`
}

// SimConfig seeds the in-process simulated provider.
type SimConfig struct {
	Points []SimPoint `yaml:"points"`
}

// SimPoint defines one simulated variable.
type SimPoint struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
	// Ramp makes the value count up by Step once a second.
	Ramp bool    `yaml:"ramp"`
	Step float64 `yaml:"step"`
	// Low/High/Precision populate the control metadata.
	Low       float64 `yaml:"low"`
	High      float64 `yaml:"high"`
	Precision int     `yaml:"precision"`
	// Labels makes the point an enumerated variable.
	Labels []string `yaml:"labels"`
}

// ModbusConfig configures the Modbus TCP provider.
type ModbusConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	UnitID     uint8         `yaml:"unit_id"`
	TimeoutMs  int           `yaml:"timeout_ms"`
	IntervalMs int           `yaml:"interval_ms"`
	Points     []ModbusPoint `yaml:"points"`
}

// ModbusPoint binds one variable name to one register.
type ModbusPoint struct {
	Name    string  `yaml:"name"`
	Kind    string  `yaml:"kind"`
	Address uint16  `yaml:"address"`
	Scale   float64 `yaml:"scale"`
	Offset  float64 `yaml:"offset"`
	Low     float64 `yaml:"low"`
	High    float64 `yaml:"high"`
	// Precision defaults to unspecified when omitted.
	Precision *int `yaml:"precision"`
}

// AuditConfig configures the write audit log.
type AuditConfig struct {
	// Path of the bolt file. Empty disables auditing, as does Disable.
	Path    string `yaml:"path"`
	Disable bool   `yaml:"disable"`
}

// LogConfig configures diagnostics output.
type LogConfig struct {
	// Level is a logrus level name; empty means "info".
	Level string `yaml:"level"`
}

// Element describes one display element runtime.
type Element struct {
	// Type is one of graphic, text-entry, menu, message-button, slider.
	Type string `yaml:"type"`
	// Channels holds up to five variable names; index 0 is primary.
	Channels []string `yaml:"channels"`
	// Visibility is static, if-not-zero, if-zero, or calc.
	Visibility string `yaml:"visibility"`
	// Expression is the calc source for visibility mode calc.
	Expression string `yaml:"expression"`
	// ColorMode is static, alarm, or discrete.
	ColorMode string `yaml:"color_mode"`
	// Color is a named color or decimal palette index for static mode.
	Color string `yaml:"color"`
	// PressValue and ReleaseValue apply to message buttons.
	PressValue   string `yaml:"press_value"`
	ReleaseValue string `yaml:"release_value"`
	// Label tags the element in logs and audit records.
	Label string `yaml:"label"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	normalize(&cfg)
	return &cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Provider.Default == "" {
		cfg.Provider.Default = "sim"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	for i := range cfg.Provider.Sim.Points {
		p := &cfg.Provider.Sim.Points[i]
		if p.Ramp && p.Step == 0 {
			p.Step = 1
		}
	}
	if m := cfg.Provider.Modbus; m != nil {
		if m.TimeoutMs <= 0 {
			m.TimeoutMs = 3000
		}
		if m.IntervalMs <= 0 {
			m.IntervalMs = 1000
		}
	}
}
