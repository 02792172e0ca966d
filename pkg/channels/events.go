package channels

import (
	"time"

	"github.com/rtsoliday/pvdisplay/pkg/errors"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// onConnectionChanged runs on the UI goroutine for every connection
// transition reported by the provider.
func (r *Registry) onConnectionChanged(e *entry, connected bool, nativeType pv.FieldType, nativeCount int) {
	r.mu.Lock()
	if !r.aliveLocked(e) {
		r.mu.Unlock()
		return
	}

	wasConnected := e.connected
	e.connected = connected
	if connected {
		e.data.Connected = true
		e.data.NativeType = nativeType
		e.data.NativeCount = nativeCount
		if !wasConnected {
			r.tracker.ChannelConnected()
		}
	} else {
		e.data.Connected = false
		// Severity of an unreachable channel is the sentinel, off the
		// 0..3 alarm scale.
		e.data.Severity = pv.SeverityDisconnected
		if wasConnected {
			r.tracker.ChannelDisconnected()
		}
	}

	if connected {
		r.ensureWiredLocked(e)
	}

	data := e.data
	targets := snapshotListeners(e)
	r.mu.Unlock()

	for _, l := range targets {
		if l.sub.IsCanceled() {
			continue
		}
		if l.cb.OnConnection != nil {
			l.cb.OnConnection(connected, data)
		}
		if !connected {
			// Listeners see the disconnect through the value path too so
			// stale indications and hidden states apply without a second
			// wiring point.
			l.cb.OnValue(data)
		}
	}
}

// ensureWiredLocked opens the value subscription and, once per channel
// lifetime, the control metadata fetch. Reconnects keep both: the wire
// subscription survives in the provider and metadata is assumed stable
// for the life of the channel. Called with r.mu held on a connected
// entry; providers must not deliver events inline from Subscribe.
func (r *Registry) ensureWiredLocked(e *entry) {
	if e.channel == nil {
		return
	}
	if !e.subscribed {
		rep := e.key.Type
		if rep == pv.FieldUnknown {
			rep = timeRepresentation(e.data.NativeType)
		}
		id, err := e.channel.Subscribe(rep, e.key.Count, func(ev pv.Event) {
			r.dispatcher.Dispatch(func() {
				r.onValueReceived(e, ev)
			})
		})
		if err != nil {
			errors.Report(&errors.RuntimeError{
				Op:   "channels.subscribe",
				Kind: errors.KindProtocol,
				PV:   e.key.Name,
				Err:  err,
			})
		} else {
			e.subID = id
			e.subscribed = true
		}
	}
	if !e.controlInfoRequested && wantsControlInfo(e.data.NativeType) {
		e.controlInfoRequested = true
		if err := e.channel.FetchControlInfo(func(info pv.ControlInfo) {
			r.dispatcher.Dispatch(func() {
				r.onControlInfo(e, info)
			})
		}); err != nil {
			errors.Report(&errors.RuntimeError{
				Op:   "channels.fetchControlInfo",
				Kind: errors.KindProtocol,
				PV:   e.key.Name,
				Err:  err,
			})
		}
	}
}

// onAccessChanged runs on the UI goroutine when access rights change.
func (r *Registry) onAccessChanged(e *entry, read, write bool) {
	r.mu.Lock()
	if !r.aliveLocked(e) {
		r.mu.Unlock()
		return
	}
	e.canRead = read
	e.canWrite = write
	targets := snapshotListeners(e)
	r.mu.Unlock()

	for _, l := range targets {
		if l.sub.IsCanceled() {
			continue
		}
		if l.cb.OnAccess != nil {
			l.cb.OnAccess(read, write)
		}
	}
}

// onControlInfo runs on the UI goroutine with the one-time metadata reply.
func (r *Registry) onControlInfo(e *entry, info pv.ControlInfo) {
	r.mu.Lock()
	if !r.aliveLocked(e) {
		r.mu.Unlock()
		return
	}
	e.data.DisplayLow = info.DisplayLow
	e.data.DisplayHigh = info.DisplayHigh
	e.data.Precision = info.Precision
	if len(info.EnumLabels) > 0 {
		e.data.EnumLabels = info.EnumLabels
	}
	e.data.HasControlInfo = true
	data := e.data
	targets := snapshotListeners(e)
	r.mu.Unlock()

	// Metadata and values may arrive in either order; listeners that
	// render limits or enum labels pick the reply up right away even
	// when no value event has landed yet.
	for _, l := range targets {
		if l.sub.IsCanceled() {
			continue
		}
		l.cb.OnValue(data)
	}
}

// onValueReceived runs on the UI goroutine for every wire value event. It
// merges the event into the cached snapshot and fans out when the value
// actually changed, subject to the optional coalescing interval.
func (r *Registry) onValueReceived(e *entry, ev pv.Event) {
	r.mu.Lock()
	if !r.aliveLocked(e) || !e.connected {
		r.mu.Unlock()
		return
	}
	r.tracker.ProtocolEvent()
	e.updateCount++

	applyEvent(&e.data, ev)

	changed := !e.notified ||
		e.data.Value != e.lastValue ||
		e.data.Str != e.lastStr ||
		e.data.Enum != e.lastEnum ||
		e.data.Severity != e.lastSeverity ||
		e.data.IsArray || e.data.IsCharArray

	now := time.Now()
	if changed && e.notified && r.opts.MinNotifyInterval > 0 &&
		now.Sub(e.lastNotify) < r.opts.MinNotifyInterval {
		// Snapshot already holds the latest value; skip the fan-out but
		// schedule a trailing flush so a burst's final event still lands.
		if !e.flushPending {
			e.flushPending = true
			delay := r.opts.MinNotifyInterval - now.Sub(e.lastNotify)
			time.AfterFunc(delay, func() {
				r.dispatcher.Dispatch(func() {
					r.flushCoalesced(e)
				})
			})
		}
		r.mu.Unlock()
		return
	}
	if !changed {
		r.mu.Unlock()
		return
	}

	e.flushPending = false
	e.notified = true
	e.lastValue = e.data.Value
	e.lastStr = e.data.Str
	e.lastEnum = e.data.Enum
	e.lastSeverity = e.data.Severity
	e.lastNotify = now

	data := e.data
	targets := snapshotListeners(e)
	r.mu.Unlock()

	for _, l := range targets {
		if l.sub.IsCanceled() {
			continue
		}
		l.cb.OnValue(data)
	}
}

// flushCoalesced runs on the UI goroutine after the coalescing interval
// elapses and delivers the snapshot a suppressed burst left behind.
func (r *Registry) flushCoalesced(e *entry) {
	r.mu.Lock()
	if !r.aliveLocked(e) {
		r.mu.Unlock()
		return
	}
	pending := e.flushPending
	e.flushPending = false
	if !pending || !e.connected {
		r.mu.Unlock()
		return
	}

	changed := e.data.Value != e.lastValue ||
		e.data.Str != e.lastStr ||
		e.data.Enum != e.lastEnum ||
		e.data.Severity != e.lastSeverity ||
		e.data.IsArray || e.data.IsCharArray
	if !changed {
		r.mu.Unlock()
		return
	}

	e.lastValue = e.data.Value
	e.lastStr = e.data.Str
	e.lastEnum = e.data.Enum
	e.lastSeverity = e.data.Severity
	e.lastNotify = time.Now()

	data := e.data
	targets := snapshotListeners(e)
	r.mu.Unlock()

	for _, l := range targets {
		if l.sub.IsCanceled() {
			continue
		}
		l.cb.OnValue(data)
	}
}

// applyEvent merges a wire event into the cached snapshot.
func applyEvent(d *pv.ChannelData, ev pv.Event) {
	d.Severity = ev.Severity
	d.Status = ev.Status
	d.Timestamp = ev.Timestamp
	d.HasTimestamp = ev.HasTimestamp

	d.IsNumeric = false
	d.IsString = false
	d.IsEnum = false
	d.IsCharArray = false
	d.IsArray = false

	switch ev.Type {
	case pv.FieldString:
		d.Str = ev.Str
		d.IsString = true
		// Strings that lead with a number still feed calc inputs.
		if v, ok := pv.LeadingNumber(ev.Str); ok {
			d.Value = v
		} else {
			d.Value = 0
		}
	case pv.FieldEnum:
		d.Enum = ev.Enum
		d.Value = float64(ev.Enum)
		d.IsEnum = true
	case pv.FieldChar:
		if len(ev.Bytes) > 1 {
			d.CharArray = append(d.CharArray[:0], ev.Bytes...)
			d.IsCharArray = true
			d.Value = float64(ev.Bytes[0])
		} else {
			var b byte
			if len(ev.Bytes) == 1 {
				b = ev.Bytes[0]
			}
			d.Value = float64(b)
			d.IsNumeric = true
		}
	default:
		if len(ev.Array) > 1 {
			d.Array = append(d.Array[:0], ev.Array...)
			d.IsArray = true
			d.Value = ev.Array[0]
		} else {
			d.Value = ev.Value
			d.IsNumeric = true
		}
	}
	d.HasValue = true
}

// timeRepresentation picks the wire representation for a native type when
// the subscriber asked for the native one.
func timeRepresentation(native pv.FieldType) pv.FieldType {
	if native == pv.FieldUnknown {
		return pv.FieldDouble
	}
	return native
}

// wantsControlInfo reports whether a native type carries metadata worth a
// one-time fetch: enums for their labels, numerics for limits and
// precision.
func wantsControlInfo(native pv.FieldType) bool {
	return native == pv.FieldEnum || native.IsNumeric()
}
