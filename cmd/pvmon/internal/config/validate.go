package config

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/rtsoliday/pvdisplay/pkg/display"
	"github.com/rtsoliday/pvdisplay/pkg/pv/modbuspv"
)

// SchemaVersion is the newest config schema this build understands.
const SchemaVersion = "v1.1.0"

// Validate checks cross-field constraints Load cannot express.
func Validate(cfg *Config) error {
	if err := checkSchema(cfg.Schema); err != nil {
		return err
	}
	switch cfg.Provider.Default {
	case "sim", "modbus":
	default:
		return fmt.Errorf("config: unknown default provider %q", cfg.Provider.Default)
	}
	if cfg.Provider.Default == "modbus" && cfg.Provider.Modbus == nil {
		return fmt.Errorf("config: default provider is modbus but no modbus section given")
	}
	if m := cfg.Provider.Modbus; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("config: modbus endpoint required")
		}
		for i, p := range m.Points {
			if p.Name == "" {
				return fmt.Errorf("config: modbus point %d: name required", i)
			}
			if _, err := modbuspv.ParseRegisterKind(p.Kind); err != nil {
				return fmt.Errorf("config: modbus point %q: %w", p.Name, err)
			}
		}
	}
	for i, el := range cfg.Elements {
		if _, err := ElementVisibility(el); err != nil {
			return fmt.Errorf("config: element %d: %w", i, err)
		}
		if _, err := ElementColorMode(el); err != nil {
			return fmt.Errorf("config: element %d: %w", i, err)
		}
		switch el.Type {
		case "graphic", "text-entry", "menu", "message-button", "slider":
		default:
			return fmt.Errorf("config: element %d: unknown type %q", i, el.Type)
		}
		if el.Visibility == "calc" && strings.TrimSpace(el.Expression) == "" {
			return fmt.Errorf("config: element %d: calc visibility needs an expression", i)
		}
	}
	return nil
}

// checkSchema accepts any schema with our major version at or below the
// build's supported minor.
func checkSchema(v string) error {
	if v == "" {
		return fmt.Errorf("config: schema version required (current is %s)", SchemaVersion)
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("config: invalid schema version %q", v)
	}
	if semver.Major(v) != semver.Major(SchemaVersion) {
		return fmt.Errorf("config: schema %s is incompatible with %s", v, SchemaVersion)
	}
	if semver.Compare(v, SchemaVersion) > 0 {
		return fmt.Errorf("config: schema %s is newer than supported %s", v, SchemaVersion)
	}
	return nil
}

// ElementVisibility maps the element's visibility spelling to its mode.
func ElementVisibility(el Element) (display.VisibilityMode, error) {
	switch el.Visibility {
	case "", "static":
		return display.VisibilityStatic, nil
	case "if-not-zero":
		return display.VisibilityIfNotZero, nil
	case "if-zero":
		return display.VisibilityIfZero, nil
	case "calc":
		return display.VisibilityCalc, nil
	}
	return 0, fmt.Errorf("unknown visibility %q", el.Visibility)
}

// ElementColorMode maps the element's color mode spelling to its mode.
func ElementColorMode(el Element) (display.ColorMode, error) {
	switch el.ColorMode {
	case "", "static":
		return display.ColorStatic, nil
	case "alarm":
		return display.ColorAlarm, nil
	case "discrete":
		return display.ColorDiscrete, nil
	}
	return 0, fmt.Errorf("unknown color mode %q", el.ColorMode)
}
