// Package channels implements the shared channel registry: one live wire
// subscription per (name, representation, count) key, fanned out to every
// listener that requested it. Protocol callbacks arrive on the provider's
// I/O goroutine and are marshaled onto the UI goroutine before any cached
// state is touched.
package channels

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rtsoliday/pvdisplay/pkg/dispatch"
	"github.com/rtsoliday/pvdisplay/pkg/errors"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
	"github.com/rtsoliday/pvdisplay/pkg/stats"
)

// Key identifies a shareable wire subscription. Two requests with equal
// keys share one underlying subscription.
type Key struct {
	// Name is the bare variable name, scheme prefix included as written.
	Name string
	// Type is the requested wire representation.
	Type pv.FieldType
	// Count is the requested element count; zero requests the native count.
	Count int
}

// Callbacks carries a listener's handlers. OnValue is required; the others
// are optional. All handlers run on the UI goroutine.
type Callbacks struct {
	// OnValue receives the shared cached snapshot after each value event.
	OnValue func(data pv.ChannelData)
	// OnConnection fires on every connection transition. The snapshot
	// carries the native type information captured at connection time.
	OnConnection func(connected bool, data pv.ChannelData)
	// OnAccess fires when the channel's access rights change.
	OnAccess func(read, write bool)
}

// ProviderResolver maps a parsed variable name to the protocol provider
// that serves it. Returning nil means no provider handles the name.
type ProviderResolver func(name pv.ParsedName) pv.Provider

// ProviderMap builds a resolver from a scheme table and a default scheme
// for bare names.
func ProviderMap(providers map[pv.Scheme]pv.Provider, def pv.Scheme) ProviderResolver {
	return func(name pv.ParsedName) pv.Provider {
		scheme := name.Scheme
		if scheme == "" {
			scheme = def
		}
		return providers[scheme]
	}
}

// Options tunes registry behavior.
type Options struct {
	// MinNotifyInterval coalesces fan-out for high-frequency channels to
	// the latest value: events arriving sooner than the interval after the
	// previous notification update the cached snapshot without notifying.
	// Zero disables coalescing.
	MinNotifyInterval time.Duration

	// Tracker receives statistics. Nil uses stats.Default.
	Tracker *stats.Tracker
}

// Registry owns the set of live wire subscriptions. It must be created
// before and closed after every element runtime that uses it.
type Registry struct {
	resolver   ProviderResolver
	dispatcher dispatch.Dispatcher
	opts       Options
	tracker    *stats.Tracker

	mu      sync.Mutex
	entries map[Key]*entry
	byID    map[uint64]*entry
	nextID  uint64
	closed  bool

	rateStart   time.Time
	rateStarted bool
}

type listener struct {
	id  uint64
	sub *Subscription
	cb  Callbacks
}

type entry struct {
	key     Key
	channel pv.Channel
	subID   pv.SubscriptionID

	connected            bool
	subscribed           bool
	controlInfoRequested bool
	canRead              bool
	canWrite             bool

	data      pv.ChannelData
	listeners []*listener

	// Change suppression state.
	notified     bool
	lastValue    float64
	lastStr      string
	lastEnum     uint16
	lastSeverity pv.Severity
	lastNotify   time.Time
	flushPending bool

	updateCount int
}

// New creates a registry. Events are marshaled through the dispatcher;
// Subscribe, Cancel, and Close must be called on the UI goroutine.
func New(resolver ProviderResolver, d dispatch.Dispatcher, opts Options) *Registry {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = stats.Default
	}
	return &Registry{
		resolver:   resolver,
		dispatcher: d,
		opts:       opts,
		tracker:    tracker,
		entries:    make(map[Key]*entry),
		byID:       make(map[uint64]*entry),
		nextID:     1,
	}
}

// Subscribe attaches a listener to the wire subscription identified by
// (name, rep, count), creating it on first use. If the entry is already
// connected, the connection state, access rights, and cached snapshot are
// delivered synchronously before Subscribe returns.
//
// A malformed or empty name yields an invalid handle: the listener is
// registered nowhere and never receives an event. This is deliberately not
// an error to the caller beyond a diagnostic log.
func (r *Registry) Subscribe(name string, rep pv.FieldType, count int, cb Callbacks) *Subscription {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || cb.OnValue == nil {
		return &Subscription{}
	}

	key := Key{Name: trimmed, Type: rep, Count: count}
	parsed := pv.ParseName(trimmed)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return &Subscription{}
	}
	e, ok := r.entries[key]
	if !ok {
		provider := r.resolver(parsed)
		if provider == nil {
			r.mu.Unlock()
			errors.Report(&errors.RuntimeError{
				Op:   "channels.Subscribe",
				Kind: errors.KindConfig,
				PV:   trimmed,
				Err:  fmt.Errorf("no provider for scheme %q", parsed.Scheme),
			})
			return &Subscription{}
		}
		e = &entry{key: key, lastSeverity: -1}
		e.data.Precision = -1
		r.entries[key] = e
		// The provider call happens outside the lock: it may announce the
		// connection inline, and that path re-enters the registry.
		r.mu.Unlock()
		r.openChannel(e, provider, parsed.Name)
		r.mu.Lock()
		if !r.aliveLocked(e) {
			r.mu.Unlock()
			return &Subscription{}
		}
	}

	id := r.nextID
	r.nextID++
	sub := &Subscription{id: id, registry: r}
	e.listeners = append(e.listeners, &listener{id: id, sub: sub, cb: cb})
	r.byID[id] = e

	connected := e.connected
	canRead, canWrite := e.canRead, e.canWrite
	data := e.data
	r.mu.Unlock()

	// Deliver cached state immediately when already connected.
	if connected {
		if cb.OnConnection != nil {
			cb.OnConnection(true, data)
		}
		if cb.OnAccess != nil {
			cb.OnAccess(canRead, canWrite)
		}
		if data.HasValue || data.HasControlInfo {
			cb.OnValue(data)
		}
	}
	return sub
}

// openChannel creates the wire channel for a fresh entry. Called without
// r.mu held; a creation failure leaves the entry channelless, so its
// listeners stay registered but never hear anything.
func (r *Registry) openChannel(e *entry, provider pv.Provider, name string) {
	ch, err := provider.CreateChannel(name,
		func(connected bool, nativeType pv.FieldType, nativeCount int) {
			r.dispatcher.Dispatch(func() {
				r.onConnectionChanged(e, connected, nativeType, nativeCount)
			})
		},
		func(read, write bool) {
			r.dispatcher.Dispatch(func() {
				r.onAccessChanged(e, read, write)
			})
		})
	if err != nil {
		errors.Report(&errors.RuntimeError{
			Op:   "channels.Subscribe",
			Kind: errors.KindProtocol,
			PV:   e.key.Name,
			Err:  err,
		})
		return
	}
	r.mu.Lock()
	if !r.aliveLocked(e) || r.closed {
		r.mu.Unlock()
		ch.Close()
		return
	}
	e.channel = ch
	r.tracker.ChannelCreated()
	// The connection may have been announced inline before the channel
	// was recorded; wire up now in that case.
	if e.connected {
		r.ensureWiredLocked(e)
	}
	r.mu.Unlock()
}

// unsubscribe detaches a listener and destroys the entry when the last
// listener leaves. Called from Subscription.Cancel.
func (r *Registry) unsubscribe(id uint64) {
	r.mu.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			break
		}
	}
	var toClose pv.Channel
	if len(e.listeners) == 0 {
		delete(r.entries, e.key)
		if e.channel != nil {
			if e.subscribed {
				e.channel.Unsubscribe(e.subID)
				e.subscribed = false
			}
			toClose = e.channel
			e.channel = nil
			if e.connected {
				r.tracker.ChannelDisconnected()
			}
			r.tracker.ChannelDestroyed()
		}
	}
	r.mu.Unlock()

	if toClose != nil {
		toClose.Close()
	}
}

// Close tears down every remaining entry. Further subscribes return
// invalid handles. Close must run after every runtime has stopped.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	var toClose []pv.Channel
	for key, e := range r.entries {
		delete(r.entries, key)
		if e.channel != nil {
			if e.subscribed {
				e.channel.Unsubscribe(e.subID)
			}
			toClose = append(toClose, e.channel)
			e.channel = nil
			r.tracker.ChannelDestroyed()
		}
		e.listeners = nil
	}
	r.byID = make(map[uint64]*entry)
	r.mu.Unlock()

	for _, ch := range toClose {
		ch.Close()
	}
}

// alive reports whether the entry is still in the map. Events queued
// before an entry was destroyed find it gone and drop silently.
// Called with r.mu held.
func (r *Registry) aliveLocked(e *entry) bool {
	cur, ok := r.entries[e.key]
	return ok && cur == e
}

// snapshotListeners copies the listener list for fan-out outside the lock.
func snapshotListeners(e *entry) []*listener {
	out := make([]*listener, len(e.listeners))
	copy(out, e.listeners)
	return out
}
