package pv

import "strings"

// Scheme selects the protocol backend for a variable name.
type Scheme string

const (
	// SchemeSim addresses the in-process simulated provider.
	SchemeSim Scheme = "sim"
	// SchemeModbus addresses the Modbus register provider.
	SchemeModbus Scheme = "modbus"
)

// ParsedName is a variable name split into its scheme prefix and bare name.
type ParsedName struct {
	// Scheme is the explicit scheme, or empty for the process default.
	Scheme Scheme
	// Raw is the name as written in the display configuration.
	Raw string
	// Name is the bare variable name with any scheme prefix stripped.
	Name string
}

// ParseName splits an optional "scheme://" prefix from a variable name.
// Unknown prefixes are left in the bare name untouched.
func ParseName(value string) ParsedName {
	parsed := ParsedName{Raw: value}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return parsed
	}
	for _, s := range []Scheme{SchemeSim, SchemeModbus} {
		prefix := string(s) + "://"
		if len(trimmed) > len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
			parsed.Scheme = s
			parsed.Name = trimmed[len(prefix):]
			return parsed
		}
	}
	parsed.Name = trimmed
	return parsed
}
