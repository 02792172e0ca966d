package runtime

import (
	"errors"

	"github.com/rtsoliday/pvdisplay/pkg/channels"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

var errTypeMismatch = errors.New("native type mismatch after renegotiation")

// Slot is one channel binding of an element. It is mutated only on the UI
// goroutine in response to registry events.
type Slot struct {
	// Index is the slot's position within the element.
	Index int
	// Name is the bound variable name; empty leaves the slot unbound.
	Name string

	Connected   bool
	Value       float64
	HasValue    bool
	Severity    pv.Severity
	Status      int16
	WriteAccess bool

	// Data is the last snapshot delivered for the slot.
	Data pv.ChannelData

	sub            *channels.Subscription
	requested      pv.FieldType
	renegotiated   bool
	mismatchLogged bool
	failed         bool
}

// mismatched reports whether the slot's requested representation cannot
// carry the channel's native type. The initial generic numeric request
// accepts any scalar numeric native type; char waveforms carry text and
// need the native char representation to keep their bytes.
func (s *Slot) mismatched(native pv.FieldType, count int) bool {
	if s.requested == pv.FieldDouble {
		if native == pv.FieldChar && count > 1 {
			return true
		}
		return !native.IsNumeric()
	}
	return s.requested != native
}

// reset cancels the slot's subscription and clears everything back to the
// pre-start default.
func (s *Slot) reset() {
	if s.sub != nil {
		s.sub.Cancel()
	}
	*s = Slot{Index: s.Index, Name: s.Name}
}

// Text returns the slot's value in the form a text-rendering element
// shows: the label of an enum, the text of a string or char array, or
// nothing when only a numeric value exists.
func (s *Slot) Text() (string, bool) {
	d := &s.Data
	switch {
	case d.IsEnum:
		if label := d.EnumLabel(); label != "" {
			return label, true
		}
		return "", false
	case d.IsString:
		return d.Str, true
	case d.IsCharArray:
		return pv.CharArrayText(d.CharArray), true
	}
	return "", false
}
