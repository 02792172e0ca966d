// Package stats keeps process-wide counters about channel and runtime
// activity for display in statistics tooling.
package stats

import "sync/atomic"

// Tracker accumulates counters. The zero value is ready to use; all
// methods are safe for concurrent use.
type Tracker struct {
	channelsCreated   atomic.Int64
	channelsDestroyed atomic.Int64
	channelsConnected atomic.Int64
	protocolEvents    atomic.Int64
	runtimesStarted   atomic.Int64
	runtimesStopped   atomic.Int64
	updatesRequested  atomic.Int64
	updatesExecuted   atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ChannelsCreated   int64
	ChannelsDestroyed int64
	ChannelsConnected int64
	ProtocolEvents    int64
	RuntimesStarted   int64
	RuntimesStopped   int64
	UpdatesRequested  int64
	UpdatesExecuted   int64
}

// ChannelCreated records a new wire channel.
func (t *Tracker) ChannelCreated() { t.channelsCreated.Add(1) }

// ChannelDestroyed records a wire channel teardown.
func (t *Tracker) ChannelDestroyed() { t.channelsDestroyed.Add(1) }

// ChannelConnected records a connect transition.
func (t *Tracker) ChannelConnected() { t.channelsConnected.Add(1) }

// ChannelDisconnected records a disconnect transition.
func (t *Tracker) ChannelDisconnected() { t.channelsConnected.Add(-1) }

// ProtocolEvent records a value event received from a provider.
func (t *Tracker) ProtocolEvent() { t.protocolEvents.Add(1) }

// RuntimeStarted records an element runtime start.
func (t *Tracker) RuntimeStarted() { t.runtimesStarted.Add(1) }

// RuntimeStopped records an element runtime stop.
func (t *Tracker) RuntimeStopped() { t.runtimesStopped.Add(1) }

// UpdateRequested records an element update request.
func (t *Tracker) UpdateRequested() { t.updatesRequested.Add(1) }

// UpdateExecuted records an element update applied to a widget.
func (t *Tracker) UpdateExecuted() { t.updatesExecuted.Add(1) }

// Snapshot returns a copy of the counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		ChannelsCreated:   t.channelsCreated.Load(),
		ChannelsDestroyed: t.channelsDestroyed.Load(),
		ChannelsConnected: t.channelsConnected.Load(),
		ProtocolEvents:    t.protocolEvents.Load(),
		RuntimesStarted:   t.runtimesStarted.Load(),
		RuntimesStopped:   t.runtimesStopped.Load(),
		UpdatesRequested:  t.updatesRequested.Load(),
		UpdatesExecuted:   t.updatesExecuted.Load(),
	}
}

// Default is the process-wide tracker.
var Default = &Tracker{}
