package ez

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// SyncSignal is a monotonic tick counter gating when a SignalledSync
// refreshes its cached snapshot. The realtime thread increments it
// once at the top of each frame.
type SyncSignal struct {
	_     cpu.CacheLinePad
	value atomic.Uint64
	_     cpu.CacheLinePad
}

// NewSyncSignal creates a signal. The counter starts at 1 so that a
// fresh latch (local value 0) always fetches on its first read.
func NewSyncSignal() *SyncSignal {
	s := &SyncSignal{}
	s.value.Store(1)
	return s
}

// Get returns the current tick.
func (s *SyncSignal) Get(RTToken) uint64 {
	return s.value.Load()
}

// Increment advances the tick. Overflow is treated as impossible
// within any practical program lifetime.
func (s *SyncSignal) Increment(RTToken) {
	s.value.Add(1)
}

// SignalledSync holds the most recently fetched version of the most
// recently published version of a value. The published value is only
// fetched when the associated SyncSignal has advanced, so within one
// frame every RTRead returns the same snapshot:
//
//	func audioCallback() {
//		// Incremented once at the beginning of each iteration.
//		signal.Increment(ez.Audio)
//
//		v1 := sync.RTRead(ez.Audio)
//		// ... the UI thread may publish a new version here ...
//		v2 := sync.RTRead(ez.Audio)
//		// v1 and v2 are guaranteed to be the same snapshot.
//	}
//
// IMPORTANT: RTRead must be called from a single realtime thread. The
// cached view and tick are not themselves synchronized across readers.
type SignalledSync[T any] struct {
	Sync[T]
	signal      *SyncSignal
	localSignal uint64
	cached      Immutable[T]
}

// NewSignalledSync creates a signalled sync bound to signal, with
// manual garbage collection, and publishes the zero value of T.
func NewSignalledSync[T any](signal *SyncSignal) *SignalledSync[T] {
	ss := &SignalledSync[T]{signal: signal}
	ss.Publish(Nort)
	return ss
}

// NewSignalledSyncAutoGC is NewSignalledSync with a collection pass
// inside every publish.
func NewSignalledSyncAutoGC[T any](signal *SyncSignal) *SignalledSync[T] {
	ss := &SignalledSync[T]{signal: signal}
	ss.published.autoGC = true
	ss.Publish(Nort)
	return ss
}

// RTRead returns the cached snapshot, refreshing it first if there is
// an unread publish and the signal has advanced since the last
// refresh. Wait-free, no allocation.
//
// The returned view is owned by the latch; the caller must not
// Release it. IMPORTANT: must be called from a single realtime
// thread.
func (ss *SignalledSync[T]) RTRead(RTToken) Immutable[T] {
	if ss.IsUnread(RT) {
		signalValue := ss.signal.Get(RT)
		if signalValue > ss.localSignal {
			ss.localSignal = signalValue
			old := ss.cached
			ss.cached = ss.Sync.RTRead(RT)
			old.Release()
		}
	}
	return ss.cached
}

// SignalledSyncArray is a SignalledSync that pins up to n fetched
// snapshots at once instead of only the latest one. The motivating
// use is crossfading: with n == 2, ping-pong between the two slots so
// the outgoing generation stays alive while the incoming one fades
// in.
//
// Like SignalledSync, exactly one realtime reader is supported.
type SignalledSyncArray[T any] struct {
	ss    SignalledSync[T]
	slots []Immutable[T]
}

// NewSignalledSyncArray creates an array latch with n view slots.
// n must be >= 1.
func NewSignalledSyncArray[T any](signal *SyncSignal, n int) *SignalledSyncArray[T] {
	if n < 1 {
		panic("slot count must be >= 1")
	}
	a := &SignalledSyncArray[T]{slots: make([]Immutable[T], n)}
	a.ss.signal = signal
	a.ss.Publish(Nort)
	return a
}

// ReadInto fetches the current snapshot into the given slot, releasing
// whatever that slot held before, and returns the payload. Other slots
// keep their previous snapshots pinned. Wait-free, no allocation.
// IMPORTANT: must be called from a single realtime thread.
func (a *SignalledSyncArray[T]) ReadInto(rt RTToken, slot int) *T {
	if slot < 0 || slot >= len(a.slots) {
		panic("slot out of range")
	}
	view := a.ss.RTRead(rt).Retain()
	a.slots[slot].Release()
	a.slots[slot] = view
	return a.slots[slot].Get()
}

// IsUnread reports whether a publish has happened with no fetch since.
// The flag is shared across all slots.
func (a *SignalledSyncArray[T]) IsUnread(safe SafeToken) bool {
	return a.ss.IsUnread(safe)
}

// SetPublish replaces the working value and publishes it.
func (a *SignalledSyncArray[T]) SetPublish(nort NortToken, value T) {
	a.ss.SetPublish(nort, value)
}

// GC runs a collection pass on the published store.
func (a *SignalledSyncArray[T]) GC(nort NortToken) {
	a.ss.GC(nort)
}
