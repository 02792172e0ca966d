// Package display holds the configuration-level attributes the element
// runtimes evaluate: visibility and color modes, the alarm color ramp, and
// the legacy 65-entry display palette.
package display

// VisibilityMode controls how a channel value drives an element's
// visibility.
type VisibilityMode int

const (
	// VisibilityStatic keeps the element always visible.
	VisibilityStatic VisibilityMode = iota
	// VisibilityIfNotZero shows the element while |value| exceeds the
	// visibility epsilon.
	VisibilityIfNotZero
	// VisibilityIfZero shows the element while |value| is within the
	// visibility epsilon.
	VisibilityIfZero
	// VisibilityCalc drives visibility from a compiled calc expression.
	VisibilityCalc
)

func (m VisibilityMode) String() string {
	switch m {
	case VisibilityStatic:
		return "static"
	case VisibilityIfNotZero:
		return "if not zero"
	case VisibilityIfZero:
		return "if zero"
	case VisibilityCalc:
		return "calc"
	default:
		return "unknown"
	}
}

// ColorMode controls how an element derives its foreground color.
type ColorMode int

const (
	// ColorStatic keeps the configured color.
	ColorStatic ColorMode = iota
	// ColorAlarm maps the primary channel's severity onto the alarm ramp.
	ColorAlarm
	// ColorDiscrete selects a color from the channel value.
	ColorDiscrete
)

func (m ColorMode) String() string {
	switch m {
	case ColorStatic:
		return "static"
	case ColorAlarm:
		return "alarm"
	case ColorDiscrete:
		return "discrete"
	default:
		return "unknown"
	}
}
