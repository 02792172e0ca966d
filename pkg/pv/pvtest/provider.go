// Package pvtest provides a synchronous fake provider for tests. All
// callbacks fire inline on the caller's goroutine, so tests drive the
// protocol side step by step and observe effects immediately when paired
// with a direct dispatcher.
package pvtest

import (
	"fmt"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// Provider is a counting fake. The zero value is not usable; call New.
type Provider struct {
	vars map[string]*Var

	// CreateErr, when set, fails the next CreateChannel call.
	CreateErr error
	// Created counts CreateChannel calls that succeeded.
	Created int
	// Closed counts channel Close calls.
	Closed int
}

// Var is the fake's per-variable state.
type Var struct {
	NativeType  pv.FieldType
	NativeCount int
	Connected   bool
	Readable    bool
	Writable    bool
	Info        pv.ControlInfo

	// Subscribes and Unsubscribes count wire subscription turnover.
	Subscribes   int
	Unsubscribes int
	// Puts records every write in arrival order.
	Puts []pv.PutValue

	channels []*Channel
}

// Channel is one fake wire channel.
type Channel struct {
	p      *Provider
	v      *Var
	name   string
	conn   pv.ConnectionHandler
	access pv.AccessHandler

	nextID pv.SubscriptionID
	subs   map[pv.SubscriptionID]wireSub
	closed bool
}

type wireSub struct {
	rep pv.FieldType
	fn  pv.EventHandler
}

// New creates an empty fake provider.
func New() *Provider {
	return &Provider{vars: make(map[string]*Var)}
}

// Define creates a variable in the connected state.
func (p *Provider) Define(name string, typ pv.FieldType, count int) *Var {
	v := p.lookup(name)
	v.NativeType = typ
	v.NativeCount = count
	v.Connected = true
	v.Readable = true
	v.Writable = true
	v.Info = pv.ControlInfo{Precision: -1}
	return v
}

// Var returns the named variable, creating it disconnected if needed.
func (p *Provider) Var(name string) *Var { return p.lookup(name) }

func (p *Provider) lookup(name string) *Var {
	v, ok := p.vars[name]
	if !ok {
		v = &Var{NativeType: pv.FieldDouble, NativeCount: 1, Info: pv.ControlInfo{Precision: -1}}
		p.vars[name] = v
	}
	return v
}

// CreateChannel implements pv.Provider. If the variable is connected the
// connection callback fires before CreateChannel returns.
func (p *Provider) CreateChannel(name string, conn pv.ConnectionHandler, access pv.AccessHandler) (pv.Channel, error) {
	if p.CreateErr != nil {
		err := p.CreateErr
		p.CreateErr = nil
		return nil, err
	}
	v := p.lookup(name)
	ch := &Channel{
		p:      p,
		v:      v,
		name:   name,
		conn:   conn,
		access: access,
		subs:   make(map[pv.SubscriptionID]wireSub),
	}
	v.channels = append(v.channels, ch)
	p.Created++
	if v.Connected {
		conn(true, v.NativeType, v.NativeCount)
		if access != nil {
			access(v.Readable, v.Writable)
		}
	}
	return ch, nil
}

// Close implements pv.Provider.
func (p *Provider) Close() error { return nil }

// Connect marks the variable connected and announces it on every open
// channel.
func (p *Provider) Connect(name string, typ pv.FieldType, count int) {
	v := p.lookup(name)
	v.NativeType = typ
	v.NativeCount = count
	v.Connected = true
	v.Readable = true
	for _, ch := range append([]*Channel(nil), v.channels...) {
		ch.conn(true, typ, count)
		if ch.access != nil {
			ch.access(v.Readable, v.Writable)
		}
	}
}

// Disconnect marks the variable disconnected and announces it.
func (p *Provider) Disconnect(name string) {
	v := p.lookup(name)
	v.Connected = false
	for _, ch := range append([]*Channel(nil), v.channels...) {
		ch.conn(false, v.NativeType, v.NativeCount)
	}
}

// Access announces an access-rights change.
func (p *Provider) Access(name string, read, write bool) {
	v := p.lookup(name)
	v.Readable = read
	v.Writable = write
	for _, ch := range v.channels {
		if ch.access != nil {
			ch.access(read, write)
		}
	}
}

// Emit delivers an event to every wire subscription on the variable.
func (p *Provider) Emit(name string, ev pv.Event) {
	v := p.lookup(name)
	for _, ch := range append([]*Channel(nil), v.channels...) {
		for _, sub := range ch.subs {
			sub.fn(ev)
		}
	}
}

// EmitValue delivers a plain numeric event with the given severity.
func (p *Provider) EmitValue(name string, value float64, severity pv.Severity) {
	p.Emit(name, pv.Event{
		Type:     pv.FieldDouble,
		Count:    1,
		Value:    value,
		Severity: severity,
	})
}

// EmitString delivers a string event.
func (p *Provider) EmitString(name, value string) {
	p.Emit(name, pv.Event{Type: pv.FieldString, Count: 1, Str: value})
}

// Name implements pv.Channel.
func (c *Channel) Name() string { return c.name }

// Subscribe implements pv.Channel.
func (c *Channel) Subscribe(rep pv.FieldType, _ int, fn pv.EventHandler) (pv.SubscriptionID, error) {
	if c.closed {
		return 0, fmt.Errorf("pvtest: channel closed")
	}
	c.nextID++
	c.subs[c.nextID] = wireSub{rep: rep, fn: fn}
	c.v.Subscribes++
	return c.nextID, nil
}

// Unsubscribe implements pv.Channel.
func (c *Channel) Unsubscribe(id pv.SubscriptionID) {
	if _, ok := c.subs[id]; ok {
		delete(c.subs, id)
		c.v.Unsubscribes++
	}
}

// FetchControlInfo implements pv.Channel, answering synchronously.
func (c *Channel) FetchControlInfo(fn pv.MetadataHandler) error {
	if !c.v.Connected {
		return pv.ErrNotConnected
	}
	fn(c.v.Info)
	return nil
}

// Put implements pv.Channel, recording the write.
func (c *Channel) Put(val pv.PutValue) error {
	if !c.v.Connected {
		return pv.ErrNotConnected
	}
	if !c.v.Writable {
		return fmt.Errorf("pvtest: %s is read only", c.name)
	}
	c.v.Puts = append(c.v.Puts, val)
	return nil
}

// Close implements pv.Channel.
func (c *Channel) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.subs = map[pv.SubscriptionID]wireSub{}
	c.p.Closed++
	for i, ch := range c.v.channels {
		if ch == c {
			c.v.channels = append(c.v.channels[:i], c.v.channels[i+1:]...)
			break
		}
	}
}
