package channels

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rtsoliday/pvdisplay/pkg/dispatch"
	"github.com/rtsoliday/pvdisplay/pkg/pv"
	"github.com/rtsoliday/pvdisplay/pkg/pv/pvtest"
	"github.com/rtsoliday/pvdisplay/pkg/stats"
)

type fixture struct {
	provider *pvtest.Provider
	loop     *dispatch.Loop
	registry *Registry
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.Tracker == nil {
		opts.Tracker = &stats.Tracker{}
	}
	f := &fixture{
		provider: pvtest.New(),
		loop:     dispatch.NewLoop(),
	}
	f.registry = New(
		func(pv.ParsedName) pv.Provider { return f.provider },
		f.loop,
		opts,
	)
	t.Cleanup(f.registry.Close)
	return f
}

// subscribe attaches a value recorder and pumps pending events.
func (f *fixture) subscribe(name string, values *[]pv.ChannelData) *Subscription {
	sub := f.registry.Subscribe(name, pv.FieldDouble, 0, Callbacks{
		OnValue: func(data pv.ChannelData) {
			*values = append(*values, data)
		},
	})
	f.loop.Pump()
	return sub
}

func TestSubscribeDedup(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a, b, c []pv.ChannelData
	f.subscribe("TEST:AI1", &a)
	f.subscribe("TEST:AI1", &b)
	f.subscribe("TEST:AI1", &c)

	if f.provider.Created != 1 {
		t.Fatalf("created %d wire channels, want 1", f.provider.Created)
	}
	if got := f.provider.Var("TEST:AI1").Subscribes; got != 1 {
		t.Fatalf("opened %d wire subscriptions, want 1", got)
	}

	f.provider.EmitValue("TEST:AI1", 42, pv.SeverityNoAlarm)
	f.loop.Pump()

	for i, got := range []*[]pv.ChannelData{&a, &b, &c} {
		last := (*got)[len(*got)-1]
		if last.Value != 42 {
			t.Errorf("listener %d saw value %g, want 42", i, last.Value)
		}
	}
}

func TestRefcountTeardownOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a, b, c []pv.ChannelData
	s1 := f.subscribe("TEST:AI1", &a)
	s2 := f.subscribe("TEST:AI1", &b)
	s3 := f.subscribe("TEST:AI1", &c)

	s1.Cancel()
	s2.Cancel()
	if f.provider.Closed != 0 {
		t.Fatalf("channel closed with listeners remaining")
	}
	s3.Cancel()
	if f.provider.Closed != 1 {
		t.Fatalf("closed %d channels, want 1", f.provider.Closed)
	}
	if got := f.provider.Var("TEST:AI1").Unsubscribes; got != 1 {
		t.Fatalf("tore down %d wire subscriptions, want 1", got)
	}
	// Idempotent.
	s3.Cancel()
	if f.provider.Closed != 1 {
		t.Fatal("second Cancel closed the channel again")
	}
}

func TestCachedReplayOnSubscribe(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)
	f.provider.EmitValue("TEST:AI1", 7, pv.SeverityMinor)
	f.loop.Pump()

	// The late subscriber gets the cached snapshot synchronously.
	var gotConn bool
	var replay []pv.ChannelData
	f.registry.Subscribe("TEST:AI1", pv.FieldDouble, 0, Callbacks{
		OnValue:      func(data pv.ChannelData) { replay = append(replay, data) },
		OnConnection: func(connected bool, _ pv.ChannelData) { gotConn = connected },
	})
	if !gotConn {
		t.Fatal("no synchronous connection replay")
	}
	if len(replay) != 1 || replay[0].Value != 7 || replay[0].Severity != pv.SeverityMinor {
		t.Fatalf("replay = %+v, want one snapshot with value 7", replay)
	}
}

func TestValueChangeSuppression(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)
	n := len(a)

	f.provider.EmitValue("TEST:AI1", 5, pv.SeverityNoAlarm)
	f.provider.EmitValue("TEST:AI1", 5, pv.SeverityNoAlarm)
	f.provider.EmitValue("TEST:AI1", 5, pv.SeverityNoAlarm)
	f.loop.Pump()
	if got := len(a) - n; got != 1 {
		t.Fatalf("unchanged value fanned out %d times, want 1", got)
	}

	// A severity change alone is a change.
	f.provider.EmitValue("TEST:AI1", 5, pv.SeverityMajor)
	f.loop.Pump()
	if got := len(a) - n; got != 2 {
		t.Fatalf("severity change not delivered (total %d)", got)
	}
}

func TestOrderingUnderBackpressure(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)
	a = nil

	// The UI loop is not pumped between events; the queue backs up.
	f.provider.EmitValue("TEST:AI1", 1, pv.SeverityMajor)
	f.provider.EmitValue("TEST:AI1", 2, pv.SeverityMinor)
	f.provider.EmitValue("TEST:AI1", 3, pv.SeverityNoAlarm)
	f.loop.Pump()

	want := []float64{1, 2, 3}
	var got []float64
	var sevs []pv.Severity
	for _, d := range a {
		got = append(got, d.Value)
		sevs = append(sevs, d.Severity)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("values out of order (-want +got):\n%s", diff)
	}
	wantSevs := []pv.Severity{pv.SeverityMajor, pv.SeverityMinor, pv.SeverityNoAlarm}
	if diff := cmp.Diff(wantSevs, sevs); diff != "" {
		t.Fatalf("severities out of order (-want +got):\n%s", diff)
	}
}

func TestLateEventAfterCancel(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	sub := f.subscribe("TEST:AI1", &a)

	// Event queued, then the handle dropped before the queue drains.
	f.provider.EmitValue("TEST:AI1", 9, pv.SeverityNoAlarm)
	sub.Cancel()
	n := len(a)
	f.loop.Pump()
	if len(a) != n {
		t.Fatalf("canceled listener received %d late events", len(a)-n)
	}
}

func TestDisconnectSetsSentinel(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	var conns []bool
	f.registry.Subscribe("TEST:AI1", pv.FieldDouble, 0, Callbacks{
		OnValue:      func(data pv.ChannelData) { a = append(a, data) },
		OnConnection: func(connected bool, _ pv.ChannelData) { conns = append(conns, connected) },
	})
	f.loop.Pump()

	f.provider.Disconnect("TEST:AI1")
	f.loop.Pump()

	if len(conns) == 0 || conns[len(conns)-1] {
		t.Fatal("disconnect not reported")
	}
	last := a[len(a)-1]
	if last.Connected {
		t.Fatal("snapshot still connected after disconnect")
	}
	if last.Severity != pv.SeverityDisconnected {
		t.Fatalf("severity = %d, want disconnected sentinel %d", last.Severity, pv.SeverityDisconnected)
	}
}

func TestControlInfoFetchedOncePerLifetime(t *testing.T) {
	f := newFixture(t, Options{})
	v := f.provider.Define("TEST:AI1", pv.FieldDouble, 1)
	v.Info = pv.ControlInfo{DisplayLow: -10, DisplayHigh: 10, Precision: 2}

	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)
	f.provider.EmitValue("TEST:AI1", 1, pv.SeverityNoAlarm)
	f.loop.Pump()

	last := a[len(a)-1]
	if !last.HasControlInfo || last.DisplayHigh != 10 || last.Precision != 2 {
		t.Fatalf("metadata not applied: %+v", last)
	}

	// Reconnect does not refetch; the cached metadata survives.
	f.provider.Disconnect("TEST:AI1")
	f.loop.Pump()
	v.Info = pv.ControlInfo{DisplayHigh: 99, Precision: 5}
	f.provider.Connect("TEST:AI1", pv.FieldDouble, 1)
	f.provider.EmitValue("TEST:AI1", 2, pv.SeverityNoAlarm)
	f.loop.Pump()

	last = a[len(a)-1]
	if last.DisplayHigh != 10 || last.Precision != 2 {
		t.Fatalf("metadata refetched across reconnect: %+v", last)
	}
}

func TestControlInfoDeliveredBeforeFirstValue(t *testing.T) {
	f := newFixture(t, Options{})
	v := f.provider.Define("TEST:AI1", pv.FieldDouble, 1)
	v.Info = pv.ControlInfo{DisplayLow: 0, DisplayHigh: 200, Precision: 3}

	// The channel is connected but has never published; the metadata
	// reply alone must still reach the listener.
	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)

	if len(a) == 0 {
		t.Fatal("metadata snapshot not delivered")
	}
	last := a[len(a)-1]
	if !last.HasControlInfo || last.DisplayHigh != 200 || last.Precision != 3 {
		t.Fatalf("metadata missing from snapshot: %+v", last)
	}
	if last.HasValue {
		t.Fatalf("snapshot claims a value before any event: %+v", last)
	}

	// A later subscriber gets the metadata-bearing snapshot replayed
	// synchronously.
	var b []pv.ChannelData
	f.registry.Subscribe("TEST:AI1", pv.FieldDouble, 0, Callbacks{
		OnValue: func(data pv.ChannelData) { b = append(b, data) },
	})
	if len(b) != 1 || !b[0].HasControlInfo {
		t.Fatalf("cached replay without metadata: %+v", b)
	}
}

func TestCoalescedBurstFlushesTrailingEvent(t *testing.T) {
	f := newFixture(t, Options{MinNotifyInterval: 20 * time.Millisecond})
	f.provider.Define("TEST:AI1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	f.subscribe("TEST:AI1", &a)

	f.provider.EmitValue("TEST:AI1", 1, pv.SeverityNoAlarm)
	f.loop.Pump()
	f.provider.EmitValue("TEST:AI1", 2, pv.SeverityMajor)
	f.loop.Pump()

	// The second event may be suppressed by the interval; the trailing
	// flush must deliver it without further traffic.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.loop.Pump()
		if len(a) > 0 {
			last := a[len(a)-1]
			if last.Value == 2 && last.Severity == pv.SeverityMajor {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("trailing event never delivered; got %+v", a)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubscribeBadName(t *testing.T) {
	f := newFixture(t, Options{})
	sub := f.registry.Subscribe("   ", pv.FieldDouble, 0, Callbacks{OnValue: func(pv.ChannelData) {}})
	if sub.Valid() {
		t.Fatal("blank name produced a valid handle")
	}
	sub.Cancel()
	if f.provider.Created != 0 {
		t.Fatal("blank name opened a channel")
	}
}

func TestCreateFailureKeepsListenerSilent(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.CreateErr = pv.ErrBadName

	var a []pv.ChannelData
	sub := f.subscribe("BAD:NAME", &a)
	if !sub.Valid() {
		t.Fatal("listener not registered on create failure")
	}
	if len(a) != 0 {
		t.Fatal("listener heard events from a failed channel")
	}
	sub.Cancel()
}

func TestPutReusesConnectedEntry(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AO1", pv.FieldDouble, 1)

	var a []pv.ChannelData
	f.subscribe("TEST:AO1", &a)
	created := f.provider.Created

	if err := f.registry.PutNumeric("TEST:AO1", 3.5); err != nil {
		t.Fatalf("PutNumeric: %v", err)
	}
	if f.provider.Created != created {
		t.Fatal("put opened a new channel despite a connected entry")
	}
	puts := f.provider.Var("TEST:AO1").Puts
	if len(puts) != 1 || puts[0].Kind != pv.PutNumeric || puts[0].Numeric != 3.5 {
		t.Fatalf("puts = %+v", puts)
	}
}

func TestPutOneShotWithoutEntry(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("TEST:AO2", pv.FieldDouble, 1)

	if err := f.registry.PutString("TEST:AO2", "on"); err != nil {
		t.Fatalf("PutString: %v", err)
	}
	if f.provider.Created != 1 {
		t.Fatalf("one-shot put created %d channels, want 1", f.provider.Created)
	}
	if f.provider.Closed != 1 {
		t.Fatalf("one-shot channel not closed (%d)", f.provider.Closed)
	}
	puts := f.provider.Var("TEST:AO2").Puts
	if len(puts) != 1 || puts[0].Str != "on" {
		t.Fatalf("puts = %+v", puts)
	}
}

func TestSummariesSorted(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("zeta", pv.FieldDouble, 1)
	f.provider.Define("Alpha", pv.FieldDouble, 1)
	f.provider.Define("beta", pv.FieldDouble, 1)

	var a, b, c []pv.ChannelData
	f.subscribe("zeta", &a)
	f.subscribe("Alpha", &b)
	f.subscribe("beta", &c)

	var names []string
	for _, s := range f.registry.Summaries() {
		names = append(names, s.Name)
	}
	want := []string{"Alpha", "beta", "zeta"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("summaries order (-want +got):\n%s", diff)
	}
}

func TestCloseTearsDownEverything(t *testing.T) {
	f := newFixture(t, Options{})
	f.provider.Define("a", pv.FieldDouble, 1)
	f.provider.Define("b", pv.FieldDouble, 1)

	var a, b []pv.ChannelData
	f.subscribe("a", &a)
	f.subscribe("b", &b)

	f.registry.Close()
	if f.provider.Closed != 2 {
		t.Fatalf("closed %d channels, want 2", f.provider.Closed)
	}
	if sub := f.registry.Subscribe("a", pv.FieldDouble, 0, Callbacks{OnValue: func(pv.ChannelData) {}}); sub.Valid() {
		t.Fatal("Subscribe after Close returned a valid handle")
	}
}
