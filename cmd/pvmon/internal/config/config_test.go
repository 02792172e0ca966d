package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rtsoliday/pvdisplay/pkg/display"
)

const sampleYAML = `
schema: v1.1.0
provider:
  default: modbus
  modbus:
    endpoint: plc1:502
    unit_id: 3
    points:
      - name: tank1:level
        kind: holding
        address: 100
        scale: 0.1
        low: 0
        high: 120
        precision: 1
  sim:
    points:
      - name: heartbeat
        ramp: true
        high: 100
audit:
  path: /var/lib/pvmon/audit.db
log:
  level: debug
elements:
  - type: graphic
    channels: [tank1:level]
    visibility: calc
    expression: "A>50"
    color_mode: alarm
  - type: text-entry
    channels: [sim://setpoint]
    label: main setpoint
`

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pvmon.yaml")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	one := 1
	want := &Config{
		Schema: "v1.1.0",
		Provider: ProviderConfig{
			Default: "modbus",
			Sim: SimConfig{
				Points: []SimPoint{{Name: "heartbeat", Ramp: true, Step: 1, High: 100}},
			},
			Modbus: &ModbusConfig{
				Endpoint:   "plc1:502",
				UnitID:     3,
				TimeoutMs:  3000,
				IntervalMs: 1000,
				Points: []ModbusPoint{{
					Name: "tank1:level", Kind: "holding", Address: 100,
					Scale: 0.1, High: 120, Precision: &one,
				}},
			},
		},
		Audit: AuditConfig{Path: "/var/lib/pvmon/audit.db"},
		Log:   LogConfig{Level: "debug"},
		Elements: []Element{
			{
				Type: "graphic", Channels: []string{"tank1:level"},
				Visibility: "calc", Expression: "A>50", ColorMode: "alarm",
			},
			{
				Type: "text-entry", Channels: []string{"sim://setpoint"},
				Label: "main setpoint",
			},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("sample config rejected: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "schema: v1.0.0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Default != "sim" {
		t.Errorf("default provider = %q, want sim", cfg.Provider.Default)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default log level = %q, want info", cfg.Log.Level)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("minimal config rejected: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "elements: {not: [a, list")); err == nil {
		t.Error("malformed YAML accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{
			"missing schema",
			func(c *Config) { c.Schema = "" },
			"schema version required",
		},
		{
			"unknown default provider",
			func(c *Config) { c.Provider.Default = "epics" },
			"unknown default provider",
		},
		{
			"modbus default without section",
			func(c *Config) { c.Provider.Default = "modbus" },
			"no modbus section",
		},
		{
			"modbus without endpoint",
			func(c *Config) { c.Provider.Modbus = &ModbusConfig{} },
			"endpoint required",
		},
		{
			"bad register kind",
			func(c *Config) {
				c.Provider.Modbus = &ModbusConfig{
					Endpoint: "plc1:502",
					Points:   []ModbusPoint{{Name: "x", Kind: "flux"}},
				}
			},
			"unknown register kind",
		},
		{
			"nameless modbus point",
			func(c *Config) {
				c.Provider.Modbus = &ModbusConfig{
					Endpoint: "plc1:502",
					Points:   []ModbusPoint{{Kind: "coil"}},
				}
			},
			"name required",
		},
		{
			"unknown element type",
			func(c *Config) { c.Elements = []Element{{Type: "gauge"}} },
			"unknown type",
		},
		{
			"unknown visibility",
			func(c *Config) { c.Elements = []Element{{Type: "graphic", Visibility: "sometimes"}} },
			"unknown visibility",
		},
		{
			"unknown color mode",
			func(c *Config) { c.Elements = []Element{{Type: "graphic", ColorMode: "plaid"}} },
			"unknown color mode",
		},
		{
			"calc without expression",
			func(c *Config) {
				c.Elements = []Element{{Type: "graphic", Visibility: "calc", Expression: "  "}}
			},
			"needs an expression",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Schema: SchemaVersion, Provider: ProviderConfig{Default: "sim"}}
			tt.edit(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCheckSchema(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"v1.1.0", true},
		{"1.1.0", true},
		{"v1.0.0", true},
		{"v1.0", true},
		{"v1.2.0", false},
		{"v2.0.0", false},
		{"v0.9.0", false},
		{"banana", false},
		{"", false},
	}
	for _, tt := range tests {
		err := checkSchema(tt.version)
		if (err == nil) != tt.ok {
			t.Errorf("checkSchema(%q) error = %v, want ok=%v", tt.version, err, tt.ok)
		}
	}
}

func TestElementModeMappings(t *testing.T) {
	vis, err := ElementVisibility(Element{Visibility: "if-not-zero"})
	if err != nil || vis != display.VisibilityIfNotZero {
		t.Errorf("if-not-zero mapped to %v, %v", vis, err)
	}
	vis, err = ElementVisibility(Element{})
	if err != nil || vis != display.VisibilityStatic {
		t.Errorf("empty visibility mapped to %v, %v", vis, err)
	}
	mode, err := ElementColorMode(Element{ColorMode: "discrete"})
	if err != nil || mode != display.ColorDiscrete {
		t.Errorf("discrete mapped to %v, %v", mode, err)
	}
}
