// Package runtime drives display elements from live channel data. A
// Runtime owns an element's channel slots, recomputes visibility, color,
// and severity after every registry event, and pushes the result to the
// element through a state callback. Everything here runs on the UI
// goroutine.
package runtime

import (
	"image/color"
	"math"

	"github.com/rtsoliday/pvdisplay/pkg/calc"
	"github.com/rtsoliday/pvdisplay/pkg/channels"
	"github.com/rtsoliday/pvdisplay/pkg/display"
	"github.com/rtsoliday/pvdisplay/pkg/errors"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
	"github.com/rtsoliday/pvdisplay/pkg/stats"
)

// MaxSlots is the number of channel slots an element may bind.
const MaxSlots = 5

// visEpsilon is the zero threshold for value-driven visibility.
const visEpsilon = 1e-12

// Config is an element's channel binding and dynamic attributes. It comes
// from the display file model and does not change while a runtime is
// started.
type Config struct {
	// Channels holds up to MaxSlots variable names. Index 0 is the
	// primary channel; empty names leave the slot unbound.
	Channels []string
	// Visibility selects how slot 0's value drives visibility.
	Visibility display.VisibilityMode
	// Expression is the calc source for VisibilityCalc mode.
	Expression string
	// Color selects how the element derives its foreground color.
	Color display.ColorMode
	// StaticColor is the configured foreground for ColorStatic mode.
	StaticColor color.RGBA
}

// State is what a runtime pushes to its element after recomputation.
type State struct {
	Connected   bool
	Visible     bool
	Severity    pv.Severity
	WriteAccess bool
}

// Binding adapts a concrete element kind to the generic runtime. The
// runtime calls it on the UI goroutine only.
type Binding interface {
	// Label names the element kind for diagnostics.
	Label() string
	// SlotChanged runs after slot state changed and before the element
	// state is recomputed.
	SlotChanged(index int, slot *Slot)
}

// nopBinding serves elements with no per-slot behavior of their own.
type nopBinding struct{ label string }

func (b nopBinding) Label() string          { return b.label }
func (b nopBinding) SlotChanged(int, *Slot) {}

// Runtime is the generic element state machine.
type Runtime struct {
	reg     *channels.Registry
	cfg     Config
	binding Binding
	tracker *stats.Tracker

	prog       calc.Program
	slots      [MaxSlots]Slot
	started    bool
	controller bool
	state      State
	onState    func(State)
}

// New creates a runtime for one element. onState receives every state
// change; it may be nil.
func New(reg *channels.Registry, cfg Config, binding Binding, onState func(State)) *Runtime {
	if binding == nil {
		binding = nopBinding{label: "element"}
	}
	r := &Runtime{
		reg:     reg,
		cfg:     cfg,
		binding: binding,
		tracker: stats.Default,
		onState: onState,
	}
	for i := range r.slots {
		r.slots[i].Index = i
		if i < len(cfg.Channels) {
			r.slots[i].Name = cfg.Channels[i]
		}
	}
	return r
}

// NewGraphic creates a runtime for a passive graphics element such as a
// rectangle, oval, arc, text, or polyline. Graphics have no behavior
// beyond the shared visibility and color evaluation.
func NewGraphic(reg *channels.Registry, cfg Config, onState func(State)) *Runtime {
	return New(reg, cfg, nopBinding{label: "graphic"}, onState)
}

// NeedsChannels reports whether starting the runtime will open channels:
// at least one slot is bound and some dynamic attribute depends on it.
// Controller runtimes always open their channels; they write through them
// regardless of the dynamic attributes.
func (r *Runtime) NeedsChannels() bool {
	if !r.controller &&
		r.cfg.Visibility == display.VisibilityStatic && r.cfg.Color == display.ColorStatic {
		return false
	}
	for i := range r.slots {
		if r.slots[i].Name != "" {
			return true
		}
	}
	return false
}

// Start compiles the expression once and binds every non-empty slot.
// Starting an already started runtime is a no-op.
func (r *Runtime) Start() {
	if r.started {
		return
	}
	r.started = true
	r.tracker.RuntimeStarted()

	if r.cfg.Visibility == display.VisibilityCalc {
		prog, err := calc.Compile(r.cfg.Expression)
		if err != nil {
			// Logged once here; the element stays hidden.
			errors.Report(&errors.RuntimeError{
				Op:   r.binding.Label() + ".start",
				Kind: errors.KindCalc,
				Err:  err,
			})
		}
		r.prog = prog
	}

	if r.NeedsChannels() {
		for i := range r.slots {
			if r.slots[i].Name != "" {
				r.bindSlot(i, pv.FieldDouble)
			}
		}
	}
	r.evaluateState()
}

// Stop releases every handle and resets the slots to their pre-start
// defaults.
func (r *Runtime) Stop() {
	if !r.started {
		return
	}
	r.started = false
	r.tracker.RuntimeStopped()
	for i := range r.slots {
		r.slots[i].reset()
	}
	r.state = State{}
}

// State returns the last computed element state.
func (r *Runtime) State() State { return r.state }

// Slot exposes a slot for inspection.
func (r *Runtime) Slot(index int) *Slot { return &r.slots[index] }

// bindSlot subscribes slot i under the given representation. Subscribe
// replays cached state on the caller's stack, so a connection callback
// can renegotiate and rebind before Subscribe returns; the handle of a
// superseded request must not overwrite the rebind's.
func (r *Runtime) bindSlot(i int, rep pv.FieldType) {
	slot := &r.slots[i]
	slot.requested = rep
	slot.sub = nil
	idx := i
	sub := r.reg.Subscribe(slot.Name, rep, 0, channels.Callbacks{
		OnValue: func(data pv.ChannelData) {
			r.slotValue(idx, data)
		},
		OnConnection: func(connected bool, data pv.ChannelData) {
			r.slotConnection(idx, connected, data)
		},
		OnAccess: func(read, write bool) {
			r.slotAccess(idx, read, write)
		},
	})
	if slot.sub == nil && slot.requested == rep {
		slot.sub = sub
		if !sub.Valid() {
			slot.failed = true
		}
	} else {
		sub.Cancel()
	}
}

// slotConnection applies a connection transition, renegotiating the wire
// representation at most once when the native type turns out not to be
// numeric.
func (r *Runtime) slotConnection(i int, connected bool, data pv.ChannelData) {
	if !r.started {
		return
	}
	slot := &r.slots[i]
	slot.Connected = connected
	slot.Data = data

	if connected && slot.mismatched(data.NativeType, data.NativeCount) {
		if !slot.renegotiated {
			slot.renegotiated = true
			slot.sub.Cancel()
			r.bindSlot(i, data.NativeType)
			return
		}
		// One renegotiation per channel lifetime. A second mismatch is a
		// permanent configuration error.
		if !slot.mismatchLogged {
			slot.mismatchLogged = true
			errors.Report(&errors.RuntimeError{
				Op:   r.binding.Label() + ".connect",
				Kind: errors.KindConfig,
				PV:   slot.Name,
				Err:  errTypeMismatch,
			})
		}
	}

	r.binding.SlotChanged(i, slot)
	r.evaluateState()
}

// slotValue applies a value event.
func (r *Runtime) slotValue(i int, data pv.ChannelData) {
	if !r.started {
		return
	}
	slot := &r.slots[i]
	slot.Data = data
	slot.Connected = data.Connected
	if data.Connected && data.HasValue {
		slot.Value = data.Value
		slot.HasValue = true
	}
	slot.Severity = data.Severity
	slot.Status = data.Status
	r.binding.SlotChanged(i, slot)
	r.evaluateState()
}

// slotAccess applies an access-rights change. Only the primary slot's
// write access gates element writes.
func (r *Runtime) slotAccess(i int, _, write bool) {
	if !r.started {
		return
	}
	r.slots[i].WriteAccess = write
	if i == 0 {
		r.evaluateState()
	}
}

// evaluateState recomputes the element state and publishes it when it
// changed.
func (r *Runtime) evaluateState() {
	r.tracker.UpdateRequested()
	st := State{
		Connected:   true,
		Visible:     true,
		Severity:    pv.SeverityNoAlarm,
		WriteAccess: r.slots[0].WriteAccess,
	}

	bound := 0
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.Name == "" || (!slot.sub.Valid() && !slot.failed) {
			continue
		}
		bound++
		if !slot.Connected {
			// A single dead dependency hides the element regardless of
			// the configured mode.
			st.Connected = false
			st.Visible = false
			st.Severity = pv.SeverityDisconnected
			r.publish(st)
			return
		}
	}
	if bound == 0 {
		r.publish(st)
		return
	}

	st.Severity = r.slots[0].Severity

	switch r.cfg.Visibility {
	case display.VisibilityStatic:
		st.Visible = true
	case display.VisibilityIfNotZero:
		st.Visible = math.Abs(r.slots[0].Value) > visEpsilon
	case display.VisibilityIfZero:
		st.Visible = math.Abs(r.slots[0].Value) <= visEpsilon
	case display.VisibilityCalc:
		st.Visible = r.evalVisibility()
	}
	r.publish(st)
}

// evalVisibility runs the compiled expression against the fixed input
// vector. Any failure hides the element.
func (r *Runtime) evalVisibility() bool {
	if !r.prog.Valid() {
		return false
	}
	var inputs [calc.NumInputs]float64
	for i := 0; i < 4 && i < MaxSlots; i++ {
		inputs[i] = r.slots[i].Value
	}
	primary := &r.slots[0].Data
	inputs[6] = float64(primary.NativeCount)
	inputs[7] = primary.DisplayHigh
	inputs[8] = float64(r.slots[0].Status)
	inputs[9] = float64(r.slots[0].Severity)
	if primary.Precision > 0 {
		inputs[10] = float64(primary.Precision)
	}
	inputs[11] = primary.DisplayLow

	result, ok := r.prog.Eval(&inputs)
	if !ok {
		// Per-event evaluation failures stay quiet to avoid flooding.
		return false
	}
	return math.Abs(result) > visEpsilon
}

// publish pushes the state to the element. Every recomputation publishes;
// suppression of unchanged values happens upstream in the registry, and
// widgets treat setter calls as idempotent.
func (r *Runtime) publish(st State) {
	r.state = st
	r.tracker.UpdateExecuted()
	if r.onState != nil {
		r.onState(st)
	}
}

// Color returns the element's current foreground color under its color
// mode. Disconnected elements always show the stale color.
func (r *Runtime) Color() color.RGBA {
	if !r.state.Connected {
		return display.AlarmColor(pv.SeverityDisconnected, false)
	}
	switch r.cfg.Color {
	case display.ColorAlarm:
		return display.AlarmColor(r.state.Severity, true)
	case display.ColorDiscrete:
		return display.PaletteColor(int(r.slots[0].Value))
	}
	return r.cfg.StaticColor
}
