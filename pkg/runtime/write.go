package runtime

import (
	"strconv"
	"strings"

	"github.com/rtsoliday/pvdisplay/pkg/audit"
	"github.com/rtsoliday/pvdisplay/pkg/channels"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// WritableOptions configures the write path shared by the interactive
// element runtimes.
type WritableOptions struct {
	// Audit records accepted writes. Nil disables auditing.
	Audit *audit.Log
	// Display names the display file for audit records.
	Display string
	// Bell is rung when a write is rejected. Nil drops the cue.
	Bell func()
}

// writable is the write-path core shared by text entry, menu, message
// button, and slider runtimes. Writes are gated on connected plus write
// access; a blocked write rings the bell and goes nowhere.
type writable struct {
	*Runtime
	reg   *channels.Registry
	opts  WritableOptions
	label string
}

func (w *writable) rejectWrite() {
	if w.opts.Bell != nil {
		w.opts.Bell()
	}
}

func (w *writable) canWrite() bool {
	st := w.State()
	return st.Connected && st.WriteAccess
}

func (w *writable) record(value string) {
	w.opts.Audit.Append(audit.Record{
		PV:      w.Slot(0).Name,
		Value:   value,
		Element: w.label,
		Display: w.opts.Display,
	})
}

// writeText encodes text in the primary channel's native representation
// and writes it. The encoding mirrors the read-path type negotiation:
// strings go as strings, enums resolve the label table with a numeric
// fallback, oversized text into a char array goes as a fixed-width byte
// array, and everything else as a numeric scalar.
func (w *writable) writeText(text string) bool {
	if !w.canWrite() {
		w.rejectWrite()
		return false
	}
	slot := w.Slot(0)
	name := slot.Name
	var err error
	switch slot.Data.NativeType {
	case pv.FieldString:
		err = w.reg.PutString(name, text)
	case pv.FieldEnum:
		idx, ok := lookupEnum(slot.Data.EnumLabels, text)
		if !ok {
			w.rejectWrite()
			return false
		}
		err = w.reg.PutEnum(name, idx)
	case pv.FieldChar:
		if slot.Data.NativeCount > 1 {
			err = w.reg.PutCharArray(name, fixedBytes(text, slot.Data.NativeCount))
			break
		}
		fallthrough
	default:
		n, ok := pv.LeadingNumber(text)
		if !ok {
			w.rejectWrite()
			return false
		}
		err = w.reg.PutNumeric(name, n)
	}
	if err != nil {
		w.rejectWrite()
		return false
	}
	w.record(text)
	return true
}

func (w *writable) writeNumeric(v float64) bool {
	if !w.canWrite() {
		w.rejectWrite()
		return false
	}
	if err := w.reg.PutNumeric(w.Slot(0).Name, v); err != nil {
		w.rejectWrite()
		return false
	}
	w.record(strconv.FormatFloat(v, 'g', -1, 64))
	return true
}

// lookupEnum resolves text against the label table, falling back to a
// numeric index.
func lookupEnum(labels []string, text string) (uint16, bool) {
	for i, label := range labels {
		if strings.EqualFold(label, text) {
			return uint16(i), true
		}
	}
	if n, ok := pv.LeadingNumber(text); ok && n >= 0 && n < 65536 {
		return uint16(n), true
	}
	return 0, false
}

// fixedBytes lays text into a NUL-padded buffer of the channel's native
// width, truncating oversized text.
func fixedBytes(text string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, text)
	return buf
}

// TextEntryRuntime serves a text entry element: one channel, free-form
// operator input written in the channel's native representation.
type TextEntryRuntime struct {
	writable
}

// NewTextEntry creates a text entry runtime on the element's primary
// channel.
func NewTextEntry(reg *channels.Registry, cfg Config, opts WritableOptions, onState func(State)) *TextEntryRuntime {
	t := &TextEntryRuntime{writable{reg: reg, opts: opts, label: "text entry"}}
	t.Runtime = New(reg, cfg, nopBinding{label: t.label}, onState)
	t.controller = true
	return t
}

// Submit writes the operator's text. It reports whether the write was
// issued; a rejection rings the bell.
func (t *TextEntryRuntime) Submit(text string) bool {
	return t.writeText(text)
}

// MenuRuntime serves a menu element bound to an enumerated channel.
type MenuRuntime struct {
	writable
}

// NewMenu creates a menu runtime.
func NewMenu(reg *channels.Registry, cfg Config, opts WritableOptions, onState func(State)) *MenuRuntime {
	m := &MenuRuntime{writable{reg: reg, opts: opts, label: "menu"}}
	m.Runtime = New(reg, cfg, nopBinding{label: m.label}, onState)
	m.controller = true
	return m
}

// Labels returns the channel's enum label table, empty until metadata
// arrives.
func (m *MenuRuntime) Labels() []string {
	return m.Slot(0).Data.EnumLabels
}

// SelectIndex writes the enum index.
func (m *MenuRuntime) SelectIndex(index uint16) bool {
	if !m.canWrite() {
		m.rejectWrite()
		return false
	}
	if err := m.reg.PutEnum(m.Slot(0).Name, index); err != nil {
		m.rejectWrite()
		return false
	}
	m.record(strconv.Itoa(int(index)))
	return true
}

// Select resolves a label and writes its index.
func (m *MenuRuntime) Select(label string) bool {
	idx, ok := lookupEnum(m.Labels(), label)
	if !ok {
		m.rejectWrite()
		return false
	}
	return m.SelectIndex(idx)
}

// MessageButtonRuntime serves a message button: a press value and an
// optional release value written to one channel.
type MessageButtonRuntime struct {
	writable
	pressValue   string
	releaseValue string
}

// NewMessageButton creates a message button runtime. Either value may be
// empty; an empty value makes the corresponding edge a no-op.
func NewMessageButton(reg *channels.Registry, cfg Config, pressValue, releaseValue string, opts WritableOptions, onState func(State)) *MessageButtonRuntime {
	b := &MessageButtonRuntime{
		writable:     writable{reg: reg, opts: opts, label: "message button"},
		pressValue:   pressValue,
		releaseValue: releaseValue,
	}
	b.Runtime = New(reg, cfg, nopBinding{label: b.label}, onState)
	b.controller = true
	return b
}

// Press writes the press value.
func (b *MessageButtonRuntime) Press() bool {
	if b.pressValue == "" {
		return false
	}
	return b.writeText(b.pressValue)
}

// Release writes the release value.
func (b *MessageButtonRuntime) Release() bool {
	if b.releaseValue == "" {
		return false
	}
	return b.writeText(b.releaseValue)
}

// SliderRuntime serves a slider bound to a numeric channel, writing
// values clamped to the channel's display limits.
type SliderRuntime struct {
	writable
}

// NewSlider creates a slider runtime.
func NewSlider(reg *channels.Registry, cfg Config, opts WritableOptions, onState func(State)) *SliderRuntime {
	s := &SliderRuntime{writable{reg: reg, opts: opts, label: "slider"}}
	s.Runtime = New(reg, cfg, nopBinding{label: s.label}, onState)
	s.controller = true
	return s
}

// Limits returns the slider's working range. Display limits pass through
// single precision the way the legacy tool stored them; a degenerate
// all-zero range widens to 0..1.
func (s *SliderRuntime) Limits() (low, high float64) {
	d := &s.Slot(0).Data
	low = float64(float32(d.DisplayLow))
	high = float64(float32(d.DisplayHigh))
	if low == 0 && high == 0 {
		return 0, 1
	}
	return low, high
}

// SetValue clamps v to the working range and writes it.
func (s *SliderRuntime) SetValue(v float64) bool {
	low, high := s.Limits()
	if low > high {
		low, high = high, low
	}
	if v < low {
		v = low
	}
	if v > high {
		v = high
	}
	return s.writeNumeric(v)
}
