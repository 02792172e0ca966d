package display

import (
	"image/color"
	"testing"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

func TestAlarmColor(t *testing.T) {
	tests := []struct {
		name      string
		severity  pv.Severity
		connected bool
		want      color.RGBA
	}{
		{"no alarm", pv.SeverityNoAlarm, true, color.RGBA{0, 205, 0, 255}},
		{"minor", pv.SeverityMinor, true, color.RGBA{255, 255, 0, 255}},
		{"major", pv.SeverityMajor, true, color.RGBA{255, 0, 0, 255}},
		{"invalid", pv.SeverityInvalid, true, color.RGBA{255, 255, 255, 255}},
		{"disconnected is stale", pv.SeverityNoAlarm, false, color.RGBA{204, 204, 204, 255}},
		{"disconnected trumps severity", pv.SeverityMajor, false, color.RGBA{204, 204, 204, 255}},
		{"sentinel severity is stale", pv.SeverityDisconnected, true, color.RGBA{204, 204, 204, 255}},
		{"out of range is stale", pv.Severity(9), true, color.RGBA{204, 204, 204, 255}},
	}
	for _, tt := range tests {
		if got := AlarmColor(tt.severity, tt.connected); got != tt.want {
			t.Errorf("%s: AlarmColor(%v, %v) = %v, want %v",
				tt.name, tt.severity, tt.connected, got, tt.want)
		}
	}
}

func TestPaletteColor(t *testing.T) {
	if got := PaletteColor(0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("PaletteColor(0) = %v", got)
	}
	if got := PaletteColor(14); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("PaletteColor(14) = %v", got)
	}
	stale := color.RGBA{204, 204, 204, 255}
	if got := PaletteColor(-1); got != stale {
		t.Errorf("PaletteColor(-1) = %v, want stale", got)
	}
	if got := PaletteColor(65); got != stale {
		t.Errorf("PaletteColor(65) = %v, want stale", got)
	}
}

func TestPaletteIsACopy(t *testing.T) {
	p := Palette()
	if len(p) != 65 {
		t.Fatalf("palette has %d entries, want 65", len(p))
	}
	p[0] = color.RGBA{}
	if PaletteColor(0) != (color.RGBA{255, 255, 255, 255}) {
		t.Error("mutating the returned palette changed the shared table")
	}
}

func TestNamedColor(t *testing.T) {
	c, ok := NamedColor("tomato")
	if !ok || c != (color.RGBA{255, 99, 71, 255}) {
		t.Errorf("NamedColor(tomato) = %v, %v", c, ok)
	}
	if c2, ok := NamedColor("  SteelBlue "); !ok || c2 != (color.RGBA{70, 130, 180, 255}) {
		t.Errorf("NamedColor with case and padding = %v, %v", c2, ok)
	}
	if _, ok := NamedColor("not-a-color"); ok {
		t.Error("unknown name resolved")
	}
}

func TestModeStrings(t *testing.T) {
	if VisibilityCalc.String() != "calc" || VisibilityMode(9).String() != "unknown" {
		t.Error("visibility mode strings")
	}
	if ColorAlarm.String() != "alarm" || ColorMode(9).String() != "unknown" {
		t.Error("color mode strings")
	}
}
