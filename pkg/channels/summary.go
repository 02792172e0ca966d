package channels

import (
	"sort"
	"strings"
	"time"

	"github.com/rtsoliday/pvdisplay/pkg/pv"
)

// ChannelSummary describes one live wire subscription for diagnostics.
type ChannelSummary struct {
	Name        string
	Connected   bool
	Writable    bool
	Severity    pv.Severity
	Subscribers int
	UpdateCount int
}

// Summaries returns one row per live entry, sorted by name without regard
// to case. Intended for a statistics view or console dump.
func (r *Registry) Summaries() []ChannelSummary {
	r.mu.Lock()
	out := make([]ChannelSummary, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, ChannelSummary{
			Name:        e.key.Name,
			Connected:   e.connected,
			Writable:    e.canWrite,
			Severity:    e.data.Severity,
			Subscribers: len(e.listeners),
			UpdateCount: e.updateCount,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ResetUpdateCounters zeroes every entry's update counter and restarts the
// rate window. It returns the length of the window that just ended, or
// zero on the first call.
func (r *Registry) ResetUpdateCounters() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var elapsed time.Duration
	if r.rateStarted {
		elapsed = now.Sub(r.rateStart)
	}
	r.rateStart = now
	r.rateStarted = true
	for _, e := range r.entries {
		e.updateCount = 0
	}
	return elapsed
}
