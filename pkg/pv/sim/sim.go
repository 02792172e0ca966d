// Package sim is an in-process protocol provider for tests and demos. It
// reproduces the asynchrony of a real protocol client: every callback is
// delivered from a single internal goroutine, never from the caller.
package sim

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// Provider is an in-process pv.Provider backed by a variable table.
type Provider struct {
	mu     sync.Mutex
	vars   map[string]*variable
	closed bool

	qmu     sync.Mutex
	queue   []func()
	qclosed bool
	wake    chan struct{}
	done    chan struct{}
}

type variable struct {
	name        string
	connected   bool
	readable    bool
	writable    bool
	nativeType  pv.FieldType
	nativeCount int

	value    float64
	str      string
	enum     uint16
	array    []float64
	bytes    []byte
	severity pv.Severity
	status   int16

	info    pv.ControlInfo
	hasInfo bool

	channels []*channel
}

type subscription struct {
	rep   pv.FieldType
	count int
	fn    pv.EventHandler
}

type channel struct {
	p      *Provider
	v      *variable
	conn   pv.ConnectionHandler
	access pv.AccessHandler

	subs    map[pv.SubscriptionID]subscription
	nextSub pv.SubscriptionID
	closed  bool
}

// NewProvider creates a provider with an empty variable table and starts
// its delivery goroutine.
func NewProvider() *Provider {
	p := &Provider{
		vars: make(map[string]*variable),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Provider) run() {
	defer close(p.done)
	for {
		<-p.wake
		for {
			p.qmu.Lock()
			if len(p.queue) == 0 {
				closed := p.qclosed
				p.qmu.Unlock()
				if closed {
					return
				}
				break
			}
			op := p.queue[0]
			p.queue = p.queue[1:]
			p.qmu.Unlock()
			op()
		}
	}
}

// enqueue schedules a callback on the delivery goroutine. The queue is
// unbounded so callbacks may safely re-enter the provider.
func (p *Provider) enqueue(op func()) {
	p.qmu.Lock()
	if p.qclosed {
		p.qmu.Unlock()
		return
	}
	p.queue = append(p.queue, op)
	p.qmu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Sync blocks until every callback enqueued so far has been delivered.
func (p *Provider) Sync() {
	ack := make(chan struct{})
	p.enqueue(func() { close(ack) })
	select {
	case <-ack:
	case <-p.done:
	}
}

// Close tears down the provider. Pending callbacks are still delivered.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.qmu.Lock()
	p.qclosed = true
	p.qmu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
	return nil
}

// Define creates a connected, readable, writable variable of the given
// native type. Defining an existing name resets it.
func (p *Provider) Define(name string, typ pv.FieldType, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.nativeType = typ
	if count < 1 {
		count = 1
	}
	v.nativeCount = count
	v.readable = true
	v.writable = true
	v.severity = pv.SeverityNoAlarm
	v.info = pv.ControlInfo{Precision: -1}
	v.hasInfo = false
	p.setConnectedLocked(v, true)
}

// lookupLocked finds or lazily creates a variable. Lazily created
// variables start disconnected, modeling a name that resolves later.
func (p *Provider) lookupLocked(name string) *variable {
	v, ok := p.vars[name]
	if !ok {
		v = &variable{
			name:        name,
			nativeType:  pv.FieldDouble,
			nativeCount: 1,
			info:        pv.ControlInfo{Precision: -1},
		}
		p.vars[name] = v
	}
	return v
}

// CreateChannel implements pv.Provider.
func (p *Provider) CreateChannel(name string, conn pv.ConnectionHandler, access pv.AccessHandler) (pv.Channel, error) {
	if name == "" {
		return nil, pv.ErrBadName
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("sim: provider closed")
	}
	v := p.lookupLocked(name)
	ch := &channel{
		p:      p,
		v:      v,
		conn:   conn,
		access: access,
		subs:   make(map[pv.SubscriptionID]subscription),
	}
	v.channels = append(v.channels, ch)
	if v.connected {
		typ, count := v.nativeType, v.nativeCount
		read, write := v.readable, v.writable
		p.enqueue(func() {
			conn(true, typ, count)
			if access != nil {
				access(read, write)
			}
		})
	}
	return ch, nil
}

// SetConnected flips a variable's connection state, notifying every open
// channel.
func (p *Provider) SetConnected(name string, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setConnectedLocked(p.lookupLocked(name), connected)
}

func (p *Provider) setConnectedLocked(v *variable, connected bool) {
	v.connected = connected
	typ, count := v.nativeType, v.nativeCount
	read, write := v.readable, v.writable
	for _, ch := range v.channels {
		conn, access := ch.conn, ch.access
		p.enqueue(func() {
			conn(connected, typ, count)
			if connected && access != nil {
				access(read, write)
			}
		})
	}
}

// SetWritable changes a variable's write access, notifying access
// handlers on connected channels.
func (p *Provider) SetWritable(name string, writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.readable = true
	v.writable = writable
	if !v.connected {
		return
	}
	for _, ch := range v.channels {
		if ch.access == nil {
			continue
		}
		access := ch.access
		p.enqueue(func() { access(true, writable) })
	}
}

// SetControlInfo installs display metadata for a variable. Channels that
// already fetched metadata do not hear about the change.
func (p *Provider) SetControlInfo(name string, info pv.ControlInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.info = info
	v.hasInfo = true
}

// SetSeverity changes a variable's alarm state and republishes the
// current value with it.
func (p *Provider) SetSeverity(name string, severity pv.Severity, status int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.severity = severity
	v.status = status
	p.publishLocked(v)
}

// SetValue assigns a numeric value and publishes an event.
func (p *Provider) SetValue(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.value = value
	v.enum = uint16(value)
	p.publishLocked(v)
}

// SetString assigns a string value and publishes an event.
func (p *Provider) SetString(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.str = value
	if n, ok := pv.LeadingNumber(value); ok {
		v.value = n
	} else {
		v.value = 0
	}
	p.publishLocked(v)
}

// SetEnum assigns an enum index and publishes an event.
func (p *Provider) SetEnum(name string, index uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.enum = index
	v.value = float64(index)
	p.publishLocked(v)
}

// SetCharArray assigns a byte waveform and publishes an event.
func (p *Provider) SetCharArray(name string, b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.bytes = append(v.bytes[:0], b...)
	if len(b) > 0 {
		v.value = float64(b[0])
	}
	p.publishLocked(v)
}

// SetArray assigns a numeric waveform and publishes an event.
func (p *Provider) SetArray(name string, values []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.lookupLocked(name)
	v.array = append(v.array[:0], values...)
	if len(values) > 0 {
		v.value = values[0]
	}
	p.publishLocked(v)
}

// publishLocked fans the variable's current state out to every wire
// subscription. Called with p.mu held.
func (p *Provider) publishLocked(v *variable) {
	if !v.connected {
		return
	}
	for _, ch := range v.channels {
		for _, sub := range ch.subs {
			ev := eventFor(v, sub.rep, sub.count)
			fn := sub.fn
			p.enqueue(func() { fn(ev) })
		}
	}
}

// eventFor converts the variable's state to the subscription's requested
// representation.
func eventFor(v *variable, rep pv.FieldType, count int) pv.Event {
	if rep == pv.FieldUnknown {
		rep = v.nativeType
	}
	if count < 1 || count > v.nativeCount {
		count = v.nativeCount
	}
	ev := pv.Event{
		Type:     rep,
		Count:    count,
		Severity: v.severity,
		Status:   v.status,
	}
	switch rep {
	case pv.FieldString:
		ev.Str = v.str
		if v.nativeType != pv.FieldString {
			ev.Str = strconv.FormatFloat(v.value, 'g', -1, 64)
		}
	case pv.FieldEnum:
		ev.Enum = v.enum
	case pv.FieldChar:
		if count > 1 {
			ev.Bytes = append([]byte(nil), v.bytes...)
		} else if len(v.bytes) > 0 {
			ev.Bytes = []byte{v.bytes[0]}
		} else {
			ev.Bytes = []byte{byte(v.value)}
		}
	default:
		if count > 1 {
			ev.Array = append([]float64(nil), v.array...)
		} else {
			ev.Value = v.value
		}
	}
	return ev
}

// Name implements pv.Channel.
func (c *channel) Name() string { return c.v.name }

// Subscribe implements pv.Channel.
func (c *channel) Subscribe(rep pv.FieldType, count int, fn pv.EventHandler) (pv.SubscriptionID, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("sim: channel closed")
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = subscription{rep: rep, count: count, fn: fn}
	if c.v.connected {
		ev := eventFor(c.v, rep, count)
		c.p.enqueue(func() { fn(ev) })
	}
	return id, nil
}

// Unsubscribe implements pv.Channel.
func (c *channel) Unsubscribe(id pv.SubscriptionID) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	delete(c.subs, id)
}

// FetchControlInfo implements pv.Channel.
func (c *channel) FetchControlInfo(fn pv.MetadataHandler) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return fmt.Errorf("sim: channel closed")
	}
	if !c.v.connected {
		return pv.ErrNotConnected
	}
	info := c.v.info
	c.p.enqueue(func() { fn(info) })
	return nil
}

// Put implements pv.Channel. The write lands in the variable table and is
// republished to every subscription, the writer's own included.
func (c *channel) Put(val pv.PutValue) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return fmt.Errorf("sim: channel closed")
	}
	v := c.v
	if !v.connected {
		return pv.ErrNotConnected
	}
	if !v.writable {
		return fmt.Errorf("sim: %s is read only", v.name)
	}
	switch val.Kind {
	case pv.PutNumeric:
		v.value = val.Numeric
		v.enum = uint16(val.Numeric)
	case pv.PutString:
		v.str = val.Str
		if n, ok := pv.LeadingNumber(val.Str); ok {
			v.value = n
		}
	case pv.PutEnum:
		v.enum = val.Enum
		v.value = float64(val.Enum)
	case pv.PutCharArray:
		v.bytes = append(v.bytes[:0], val.Bytes...)
		v.str = pv.CharArrayText(val.Bytes)
	case pv.PutNumericArray:
		v.array = append(v.array[:0], val.Array...)
		if len(val.Array) > 0 {
			v.value = val.Array[0]
		}
	}
	c.p.publishLocked(v)
	return nil
}

// Close implements pv.Channel.
func (c *channel) Close() {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.subs = nil
	for i, ch := range c.v.channels {
		if ch == c {
			c.v.channels = append(c.v.channels[:i], c.v.channels[i+1:]...)
			break
		}
	}
}
