// Package modbuspv serves process variables from a Modbus register map.
// Each point binds a variable name to one coil, discrete input, holding
// register, or input register. A clock-driven poll loop reads every bound
// point and publishes changes; writes go straight to the device.
package modbuspv

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// RegisterKind selects the Modbus table a point lives in.
type RegisterKind int

const (
	// Coil is a read/write bit (function codes 1 and 5).
	Coil RegisterKind = iota
	// DiscreteInput is a read-only bit (function code 2).
	DiscreteInput
	// HoldingRegister is a read/write 16-bit register (function codes 3 and 6).
	HoldingRegister
	// InputRegister is a read-only 16-bit register (function code 4).
	InputRegister
)

// String returns the register map spelling of the kind.
func (k RegisterKind) String() string {
	switch k {
	case Coil:
		return "coil"
	case DiscreteInput:
		return "discrete"
	case HoldingRegister:
		return "holding"
	case InputRegister:
		return "input"
	}
	return fmt.Sprintf("RegisterKind(%d)", int(k))
}

// ParseRegisterKind parses the register map spelling.
func ParseRegisterKind(s string) (RegisterKind, error) {
	switch s {
	case "coil":
		return Coil, nil
	case "discrete":
		return DiscreteInput, nil
	case "holding":
		return HoldingRegister, nil
	case "input":
		return InputRegister, nil
	}
	return 0, fmt.Errorf("modbuspv: unknown register kind %q", s)
}

// Writable reports whether the kind accepts writes.
func (k RegisterKind) Writable() bool {
	return k == Coil || k == HoldingRegister
}

// Point binds one variable name to one register.
type Point struct {
	// Name is the variable name, without the scheme prefix.
	Name string
	// Kind selects the register table.
	Kind RegisterKind
	// Address is the zero-based register address.
	Address uint16
	// Scale multiplies the raw register value; zero means one.
	Scale float64
	// Offset is added after scaling.
	Offset float64
	// DisplayLow and DisplayHigh are the display limits reported through
	// control metadata.
	DisplayLow  float64
	DisplayHigh float64
	// Precision is the display precision, or -1 for unspecified.
	Precision int
}

// Client abstracts the Modbus operations the provider needs. Read replies
// are the raw PDU payloads; unpacking is the provider's concern.
type Client interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
}

// Options configures a provider.
type Options struct {
	// Interval is the poll period. Zero defaults to one second.
	Interval time.Duration
	// Points is the register map. A channel for an unbound name stays
	// disconnected forever.
	Points []Point
}

type point struct {
	cfg  Point
	raw  uint16
	has  bool
	chls []*channel
}

// Provider is a pv.Provider over one Modbus unit.
type Provider struct {
	mu        sync.Mutex
	client    Client
	transport io.Closer
	points    map[string]*point
	up        bool
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a provider and starts its poll loop.
func New(client Client, opts Options) *Provider {
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		client: client,
		points: make(map[string]*point, len(opts.Points)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, pt := range opts.Points {
		cfg := pt
		if cfg.Scale == 0 {
			cfg.Scale = 1
		}
		p.points[cfg.Name] = &point{cfg: cfg}
	}
	go p.run(ctx, interval)
	return p
}

// CreateChannel implements pv.Provider. Names outside the register map get
// a channel that never connects.
func (p *Provider) CreateChannel(name string, conn pv.ConnectionHandler, access pv.AccessHandler) (pv.Channel, error) {
	if name == "" {
		return nil, pv.ErrBadName
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("modbuspv: provider closed")
	}
	ch := &channel{p: p, name: name, conn: conn, access: access}
	pt, ok := p.points[name]
	if !ok {
		p.mu.Unlock()
		// Unbound names stay dark rather than erroring; the register map
		// may be incomplete on purpose.
		return ch, nil
	}
	ch.pt = pt
	pt.chls = append(pt.chls, ch)
	var announce func()
	if p.up {
		announce = p.announceFnLocked(ch, true)
	}
	p.mu.Unlock()
	if announce != nil {
		announce()
	}
	return ch, nil
}

// Close implements pv.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	transport := p.transport
	p.mu.Unlock()
	p.cancel()
	<-p.done
	if transport != nil {
		return transport.Close()
	}
	return nil
}

// run is the poll loop; it is the provider's I/O goroutine and the only
// place callbacks fire from.
func (p *Provider) run(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	p.pollOnce()
	for {
		select {
		case <-ctx.Done():
			p.setUp(false)
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

// pollOnce reads every bound point. Any read failure marks the unit down;
// a full clean cycle marks it up.
func (p *Provider) pollOnce() {
	p.mu.Lock()
	pts := make([]*point, 0, len(p.points))
	for _, pt := range p.points {
		pts = append(pts, pt)
	}
	p.mu.Unlock()

	now := time.Now()
	for _, pt := range pts {
		raw, err := p.readPoint(pt.cfg)
		if err != nil {
			p.setUp(false)
			return
		}
		p.publish(pt, raw, now)
	}
	p.setUp(true)
}

func (p *Provider) readPoint(cfg Point) (uint16, error) {
	switch cfg.Kind {
	case Coil:
		b, err := p.client.ReadCoils(cfg.Address, 1)
		return bitValue(b), err
	case DiscreteInput:
		b, err := p.client.ReadDiscreteInputs(cfg.Address, 1)
		return bitValue(b), err
	case HoldingRegister:
		b, err := p.client.ReadHoldingRegisters(cfg.Address, 1)
		return regValue(b), err
	case InputRegister:
		b, err := p.client.ReadInputRegisters(cfg.Address, 1)
		return regValue(b), err
	}
	return 0, fmt.Errorf("modbuspv: unsupported register kind %d", cfg.Kind)
}

func bitValue(b []byte) uint16 {
	if len(b) > 0 && b[0]&1 != 0 {
		return 1
	}
	return 0
}

func regValue(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// setUp flips the unit's connection state, announcing the transition on
// every channel bound to a point.
func (p *Provider) setUp(up bool) {
	p.mu.Lock()
	if p.up == up || p.closed && up {
		p.mu.Unlock()
		return
	}
	p.up = up
	var anns []func()
	for _, pt := range p.points {
		for _, ch := range pt.chls {
			anns = append(anns, p.announceFnLocked(ch, up))
		}
	}
	p.mu.Unlock()
	for _, fn := range anns {
		fn()
	}
}

// announceFnLocked builds the connection and access callback for one
// channel, to be invoked outside the lock.
func (p *Provider) announceFnLocked(ch *channel, up bool) func() {
	conn, access := ch.conn, ch.access
	writable := ch.pt.cfg.Kind.Writable()
	return func() {
		if conn != nil {
			conn(up, pv.FieldDouble, 1)
		}
		if up && access != nil {
			access(true, writable)
		}
	}
}

// publish records a polled value and delivers it to subscriptions when it
// changed or has not been sent yet.
func (p *Provider) publish(pt *point, raw uint16, now time.Time) {
	p.mu.Lock()
	if pt.has && pt.raw == raw {
		p.mu.Unlock()
		return
	}
	pt.raw = raw
	pt.has = true
	value := float64(raw)*pt.cfg.Scale + pt.cfg.Offset
	var sends []func()
	for _, ch := range pt.chls {
		for _, sub := range ch.subs {
			fn := sub
			ev := pv.Event{
				Type:         pv.FieldDouble,
				Count:        1,
				Value:        value,
				Severity:     pv.SeverityNoAlarm,
				Timestamp:    now,
				HasTimestamp: true,
			}
			sends = append(sends, func() { fn(ev) })
		}
	}
	p.mu.Unlock()
	for _, send := range sends {
		send()
	}
}

type channel struct {
	p      *Provider
	name   string
	pt     *point
	conn   pv.ConnectionHandler
	access pv.AccessHandler

	nextSub pv.SubscriptionID
	subs    map[pv.SubscriptionID]pv.EventHandler
	closed  bool
}

// Name implements pv.Channel.
func (c *channel) Name() string { return c.name }

// Subscribe implements pv.Channel. Representation and count are accepted
// but the wire always carries scalar doubles.
func (c *channel) Subscribe(_ pv.FieldType, _ int, fn pv.EventHandler) (pv.SubscriptionID, error) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("modbuspv: channel closed")
	}
	if c.pt == nil {
		return 0, pv.ErrNotConnected
	}
	if c.subs == nil {
		c.subs = make(map[pv.SubscriptionID]pv.EventHandler)
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	// Force the next poll to republish so the new subscription sees the
	// current value even when the register is steady.
	c.pt.has = false
	return id, nil
}

// Unsubscribe implements pv.Channel.
func (c *channel) Unsubscribe(id pv.SubscriptionID) {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	delete(c.subs, id)
}

// FetchControlInfo implements pv.Channel, answering from the register map.
func (c *channel) FetchControlInfo(fn pv.MetadataHandler) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.pt == nil || !c.p.up {
		return pv.ErrNotConnected
	}
	cfg := c.pt.cfg
	info := pv.ControlInfo{
		DisplayLow:  cfg.DisplayLow,
		DisplayHigh: cfg.DisplayHigh,
		Precision:   cfg.Precision,
	}
	// Metadata is static config; answer inline rather than from the poll
	// loop.
	go fn(info)
	return nil
}

// Put implements pv.Channel.
func (c *channel) Put(val pv.PutValue) error {
	c.p.mu.Lock()
	if c.pt == nil || !c.p.up {
		c.p.mu.Unlock()
		return pv.ErrNotConnected
	}
	cfg := c.pt.cfg
	client := c.p.client
	c.p.mu.Unlock()

	if !cfg.Kind.Writable() {
		return fmt.Errorf("modbuspv: %s is read only", c.name)
	}
	num, err := putNumeric(val)
	if err != nil {
		return err
	}
	switch cfg.Kind {
	case Coil:
		var bits uint16
		if num != 0 {
			bits = 0xFF00
		}
		_, err = client.WriteSingleCoil(cfg.Address, bits)
	case HoldingRegister:
		raw := (num - cfg.Offset) / cfg.Scale
		if raw < 0 || raw > 65535 {
			return fmt.Errorf("modbuspv: %s: value %g out of register range", c.name, num)
		}
		_, err = client.WriteSingleRegister(cfg.Address, uint16(raw+0.5))
	}
	return err
}

func putNumeric(val pv.PutValue) (float64, error) {
	switch val.Kind {
	case pv.PutNumeric:
		return val.Numeric, nil
	case pv.PutEnum:
		return float64(val.Enum), nil
	case pv.PutString:
		if n, ok := pv.LeadingNumber(val.Str); ok {
			return n, nil
		}
		return 0, fmt.Errorf("modbuspv: cannot write %q to a register", val.Str)
	}
	return 0, fmt.Errorf("modbuspv: unsupported write kind %d", val.Kind)
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
	if c.pt != nil {
		for i, ch := range c.pt.chls {
			if ch == c {
				c.pt.chls = append(c.pt.chls[:i], c.pt.chls[i+1:]...)
				break
			}
		}
	}
}
