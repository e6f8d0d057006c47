package ez

import "sync/atomic"

// Trigger is a one-shot edge flag: fire-and-consume. Any number of
// fires between consumes collapse into one edge. The trigger carries
// only its own one-bit state; any payload must be synchronized by
// other means.
//
// The zero Trigger is ready to use and unfired.
type Trigger struct {
	fired atomic.Bool
}

// Fire sets the flag. Idempotent. Wait-free, safe from any thread.
func (t *Trigger) Fire(SafeToken) {
	t.fired.Store(true)
}

// TestAndConsume reports whether the flag was set, and clears it.
// Wait-free, safe from any thread.
func (t *Trigger) TestAndConsume(SafeToken) bool {
	return t.fired.Swap(false)
}
