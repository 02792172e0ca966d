package pv

import (
	"strconv"
	"strings"
	"time"
)

// ControlInfo is the display metadata fetched once per channel after the
// first connection: display limits, precision, and the enum label set.
type ControlInfo struct {
	DisplayLow  float64
	DisplayHigh float64
	// Precision is the display precision, or -1 when the channel does not
	// report one.
	Precision  int
	EnumLabels []string
}

// ChannelData is the cached snapshot delivered to subscribers. The value is
// a union tagged by the kind flags; exactly the flags matching the native
// representation are set once a value has arrived.
type ChannelData struct {
	// Connection state.
	Connected   bool
	NativeType  FieldType
	NativeCount int

	// Last received value, stored in the formats the representation allows.
	Value     float64
	Str       string
	Enum      uint16
	Array     []float64
	CharArray []byte

	// Alarm information.
	Severity     Severity
	Status       int16
	Timestamp    time.Time
	HasTimestamp bool

	// Control metadata, cached for the life of the channel once delivered.
	DisplayLow     float64
	DisplayHigh    float64
	Precision      int
	EnumLabels     []string
	HasControlInfo bool

	// Flags indicating what data is valid.
	HasValue    bool
	IsNumeric   bool
	IsString    bool
	IsEnum      bool
	IsCharArray bool
	IsArray     bool
}

// EnumLabel returns the label for the current enum value, or the empty
// string when no label table is available or the value is out of range.
func (d *ChannelData) EnumLabel() string {
	if int(d.Enum) < len(d.EnumLabels) {
		return d.EnumLabels[d.Enum]
	}
	return ""
}

// CharArrayText interprets the char array as text up to the first NUL byte.
func CharArrayText(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// LeadingNumber parses a leading numeric token from text. Non-numeric
// payloads degrade to 0 with ok=false rather than an error; this mirrors
// how a char-array channel is read by a widget whose format is numeric.
func LeadingNumber(s string) (v float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	end := len(s)
	for i := range s {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '+' || c == '-' || c == '.' ||
			c == 'e' || c == 'E' || c == 'x' || c == 'X' ||
			(c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			continue
		}
		end = i
		break
	}
	for end > 0 {
		v, err := strconv.ParseFloat(s[:end], 64)
		if err == nil {
			return v, true
		}
		if n, err := strconv.ParseInt(s[:end], 0, 64); err == nil {
			return float64(n), true
		}
		end--
	}
	return 0, false
}
