package display

import (
	"image/color"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// The 4-level alarm ramp plus the stale color used while disconnected.
var alarmColors = [5]color.RGBA{
	{0, 205, 0, 255},     // NO_ALARM, green3
	{255, 255, 0, 255},   // MINOR, yellow
	{255, 0, 0, 255},     // MAJOR, red
	{255, 255, 255, 255}, // INVALID, white
	{204, 204, 204, 255}, // stale, gray80
}

// AlarmColor maps a severity onto the alarm ramp. A disconnected channel
// always yields the stale color, regardless of mode or severity.
func AlarmColor(severity pv.Severity, connected bool) color.RGBA {
	if !connected {
		return alarmColors[4]
	}
	if severity < pv.SeverityNoAlarm || severity > pv.SeverityInvalid {
		return alarmColors[4]
	}
	return alarmColors[severity]
}

// Palette returns the legacy 65-entry display palette.
func Palette() []color.RGBA {
	p := make([]color.RGBA, len(palette))
	copy(p, palette)
	return p
}

// PaletteColor returns the palette entry at index, or the stale color when
// the index is out of range.
func PaletteColor(index int) color.RGBA {
	if index < 0 || index >= len(palette) {
		return alarmColors[4]
	}
	return palette[index]
}

// NamedColor resolves a color by SVG 1.1 name ("tomato", "steelblue").
// Lookup is case-insensitive.
func NamedColor(name string) (color.RGBA, bool) {
	c, ok := colornames.Map[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

var palette = []color.RGBA{
	{255, 255, 255, 255}, {236, 236, 236, 255}, {218, 218, 218, 255},
	{200, 200, 200, 255}, {187, 187, 187, 255}, {174, 174, 174, 255},
	{158, 158, 158, 255}, {145, 145, 145, 255}, {133, 133, 133, 255},
	{120, 120, 120, 255}, {105, 105, 105, 255}, {90, 90, 90, 255},
	{70, 70, 70, 255}, {45, 45, 45, 255}, {0, 0, 0, 255},
	{0, 216, 0, 255}, {30, 187, 0, 255}, {51, 153, 0, 255},
	{45, 127, 0, 255}, {33, 108, 0, 255}, {253, 0, 0, 255},
	{222, 19, 9, 255}, {190, 25, 11, 255}, {160, 18, 7, 255},
	{130, 4, 0, 255}, {88, 147, 255, 255}, {89, 126, 225, 255},
	{75, 110, 199, 255}, {58, 94, 171, 255}, {39, 84, 141, 255},
	{251, 243, 74, 255}, {249, 218, 60, 255}, {238, 182, 43, 255},
	{225, 144, 21, 255}, {205, 97, 0, 255}, {255, 176, 255, 255},
	{214, 127, 226, 255}, {174, 78, 188, 255}, {139, 26, 150, 255},
	{97, 10, 117, 255}, {164, 170, 255, 255}, {135, 147, 226, 255},
	{106, 115, 193, 255}, {77, 82, 164, 255}, {52, 51, 134, 255},
	{199, 187, 109, 255}, {183, 157, 92, 255}, {164, 126, 60, 255},
	{125, 86, 39, 255}, {88, 52, 15, 255}, {153, 255, 255, 255},
	{115, 223, 255, 255}, {78, 165, 249, 255}, {42, 99, 228, 255},
	{10, 0, 184, 255}, {235, 241, 181, 255}, {212, 219, 157, 255},
	{187, 193, 135, 255}, {166, 164, 98, 255}, {139, 130, 57, 255},
	{115, 255, 107, 255}, {82, 218, 59, 255}, {60, 180, 32, 255},
	{40, 147, 21, 255}, {26, 115, 9, 255},
}
