package channels

import "sync/atomic"

// Subscription is the handle returned by Registry.Subscribe. Canceling the
// handle detaches its listener; when the last listener for a key detaches,
// the underlying wire subscription is torn down.
type Subscription struct {
	id       uint64
	registry *Registry
	canceled atomic.Bool
}

// Valid reports whether the handle refers to a registered listener.
// Subscribe returns an invalid handle when no subscription was attempted
// (empty name, missing callback).
func (s *Subscription) Valid() bool {
	return s != nil && s.id != 0
}

// Cancel detaches the listener. The registry side is synchronous: the
// listener count is decremented immediately and the entry removed at zero.
// Wire teardown may complete asynchronously; a late event referencing this
// listener is dropped. Cancel is idempotent and safe on an invalid handle.
func (s *Subscription) Cancel() {
	if !s.Valid() {
		return
	}
	if s.canceled.CompareAndSwap(false, true) {
		s.registry.unsubscribe(s.id)
	}
}

// IsCanceled reports whether Cancel has been called.
func (s *Subscription) IsCanceled() bool {
	return s == nil || s.canceled.Load()
}
