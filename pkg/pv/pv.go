// Package pv defines the protocol-client abstraction the display runtime is
// built against: native field types, alarm severities, channel data
// snapshots, and the Provider interface implemented by concrete transports.
package pv

// FieldType identifies the wire representation of a process variable.
// It covers both native types discovered on connection and representations
// requested for a subscription.
type FieldType int

const (
	// FieldUnknown is the zero value, used before a channel connects.
	FieldUnknown FieldType = iota
	// FieldString is a text scalar.
	FieldString
	// FieldEnum is an enumerated value with an optional label table.
	FieldEnum
	// FieldChar is a single byte; with a count above one it is a char array.
	FieldChar
	// FieldShort is a 16-bit signed integer scalar.
	FieldShort
	// FieldLong is a 32-bit signed integer scalar.
	FieldLong
	// FieldFloat is a 32-bit floating scalar.
	FieldFloat
	// FieldDouble is a 64-bit floating scalar. It is the generic numeric
	// representation requested before a channel's native type is known.
	FieldDouble
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldEnum:
		return "enum"
	case FieldChar:
		return "char"
	case FieldShort:
		return "short"
	case FieldLong:
		return "long"
	case FieldFloat:
		return "float"
	case FieldDouble:
		return "double"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the field type carries a numeric scalar.
func (t FieldType) IsNumeric() bool {
	switch t {
	case FieldChar, FieldShort, FieldLong, FieldFloat, FieldDouble:
		return true
	default:
		return false
	}
}

// Severity is an ordered alarm level attached to a live value.
type Severity int16

const (
	// SeverityNoAlarm indicates a value inside all alarm limits.
	SeverityNoAlarm Severity = 0
	// SeverityMinor indicates a minor alarm.
	SeverityMinor Severity = 1
	// SeverityMajor indicates a major alarm.
	SeverityMajor Severity = 2
	// SeverityInvalid indicates an invalid value while connected.
	SeverityInvalid Severity = 3

	// SeverityDisconnected is the sentinel reported for a disconnected
	// channel. It is distinct from the 0-3 scale used while connected.
	SeverityDisconnected Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityNoAlarm:
		return "NO_ALARM"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	case SeverityDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}
